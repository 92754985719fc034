package vectorstore

import (
	"github.com/cpage-pivotal/ipzs/internal/domain"
	"github.com/cpage-pivotal/ipzs/internal/temporal"
)

// Payload flattens a chunk into the metadata map stored next to its vector.
// effective_date_epoch is the field date filters run against.
func Payload(c domain.Chunk) map[string]any {
	return map[string]any{
		"chunk_id":          c.ID,
		"document_id":       c.SourceDocumentID,
		"text":              c.Text,
		"title":             c.Title,
		"document_type":     c.DocumentType,
		"issuing_authority": c.IssuingAuthority,
		"document_number":   c.DocumentNumber,
		"effective_date":    c.EffectiveDate,
		"expiration_date":   c.ExpirationDate,
		"publication_date":  c.PublicationDate,
		"chunk_index":       c.ChunkIndex,
		"total_chunks":      c.TotalChunks,
		"generation":        c.Generation.String(),
		"subject_area":      c.SubjectArea,
		"key_provisions":    c.KeyProvisions,
		"supersedes":        c.Supersedes,
		temporal.EpochField: temporal.EffectiveEpoch(c),
	}
}

// ChunkFromPayload is the inverse of Payload. Numbers may arrive as float64
// after a JSON round trip.
func ChunkFromPayload(p map[string]any) domain.Chunk {
	return domain.Chunk{
		ID:               str(p, "chunk_id"),
		SourceDocumentID: str(p, "document_id"),
		Text:             str(p, "text"),
		Title:            str(p, "title"),
		DocumentType:     str(p, "document_type"),
		IssuingAuthority: str(p, "issuing_authority"),
		DocumentNumber:   str(p, "document_number"),
		EffectiveDate:    str(p, "effective_date"),
		ExpirationDate:   str(p, "expiration_date"),
		PublicationDate:  str(p, "publication_date"),
		ChunkIndex:       num(p, "chunk_index"),
		TotalChunks:      num(p, "total_chunks"),
		Generation:       domain.ParseGeneration(str(p, "generation")),
		SubjectArea:      str(p, "subject_area"),
		KeyProvisions:    str(p, "key_provisions"),
		Supersedes:       str(p, "supersedes"),
	}
}

func str(p map[string]any, k string) string {
	if v, ok := p[k].(string); ok {
		return v
	}
	return ""
}

func num(p map[string]any, k string) int {
	switch v := p[k].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}
