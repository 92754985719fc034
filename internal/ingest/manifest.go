// Package ingest turns manifests of legislative acts into chunks carrying the
// full temporal metadata contract, and records each document once.
package ingest

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/kaptinlin/jsonschema"
	"gopkg.in/yaml.v3"
)

var ErrInvalidManifest = errors.New("ingest: invalid manifest")

//go:embed manifest.schema.json
var manifestSchema []byte

// Template is one act as supplied by a manifest.
type Template struct {
	Title            string   `yaml:"title" json:"title"`
	DocumentNumber   string   `yaml:"document_number" json:"document_number"`
	DocumentType     string   `yaml:"document_type,omitempty" json:"document_type,omitempty"`
	IssuingAuthority string   `yaml:"issuing_authority,omitempty" json:"issuing_authority,omitempty"`
	EffectiveDate    string   `yaml:"effective_date" json:"effective_date"`
	ExpirationDate   string   `yaml:"expiration_date,omitempty" json:"expiration_date,omitempty"`
	PublicationDate  string   `yaml:"publication_date,omitempty" json:"publication_date,omitempty"`
	SubjectArea      string   `yaml:"subject_area,omitempty" json:"subject_area,omitempty"`
	Supersedes       string   `yaml:"supersedes,omitempty" json:"supersedes,omitempty"`
	KeyProvisions    []string `yaml:"key_provisions,omitempty" json:"key_provisions,omitempty"`
	Content          string   `yaml:"content" json:"content"`
}

// Manifest is a batch of acts.
type Manifest struct {
	Documents []Template `yaml:"documents" json:"documents"`
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		schema, schemaErr = compiler.Compile(manifestSchema)
	})
	return schema, schemaErr
}

// ParseManifest reads a YAML or JSON manifest and validates it against the
// manifest schema.
func ParseManifest(data []byte) (Manifest, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Manifest{}, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	doc, err := json.Marshal(raw)
	if err != nil {
		return Manifest{}, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	s, err := compiledSchema()
	if err != nil {
		return Manifest{}, fmt.Errorf("ingest: compile manifest schema: %w", err)
	}
	if result := s.ValidateJSON(doc); !result.IsValid() {
		return Manifest{}, fmt.Errorf("%w: %v", ErrInvalidManifest, result.Errors)
	}
	var m Manifest
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	return m, nil
}
