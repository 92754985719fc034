package ingest

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const manifestYAML = `
documents:
  - title: Highway Speed Limit Modernization Act of 2024
    document_number: H.R. 2024-001
    effective_date: "2024-01-01"
    key_provisions: [75 mph rural interstate]
    content: The speed limit on rural interstate highways shall be 75 miles per hour.
`

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(manifestYAML))
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Documents) != 1 {
		t.Fatalf("documents = %+v", m.Documents)
	}
	d := m.Documents[0]
	if d.DocumentNumber != "H.R. 2024-001" || d.EffectiveDate != "2024-01-01" || d.KeyProvisions[0] != "75 mph rural interstate" {
		t.Fatalf("document = %+v", d)
	}

	j := `{"documents":[{"title":"T","document_number":"N-1","effective_date":"2025-09-01","content":"x."}]}`
	if _, err := ParseManifest([]byte(j)); err != nil {
		t.Fatalf("json manifest: %v", err)
	}
}

func TestParseManifestRejects(t *testing.T) {
	tests := map[string]string{
		"empty":           ``,
		"not a list":      `documents: 3`,
		"missing content": `{"documents":[{"title":"T","document_number":"N","effective_date":"2025-09-01"}]}`,
		"missing date":    `{"documents":[{"title":"T","document_number":"N","content":"x"}]}`,
		"bad date":        `{"documents":[{"title":"T","document_number":"N","effective_date":"09/01/2025","content":"x"}]}`,
		"impossible date": `{"documents":[{"title":"T","document_number":"N","effective_date":"2025-02-30","content":"x"}]}`,
		"unknown field":   `{"documents":[{"title":"T","document_number":"N","effective_date":"2025-09-01","content":"x","author":"me"}]}`,
		"malformed yaml":  "documents: [\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseManifest([]byte(in)); !errors.Is(err, ErrInvalidManifest) {
				t.Fatalf("err = %v", err)
			}
		})
	}
}

func TestSampleCorpus(t *testing.T) {
	m, err := Load(context.Background(), SampleSource{})
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Documents) != 11 {
		t.Fatalf("sample corpus has %d documents", len(m.Documents))
	}
	ids := map[string]bool{}
	expiring := 0
	for _, d := range m.Documents {
		id := DocumentID(d.DocumentNumber)
		if ids[id] {
			t.Fatalf("duplicate id %s", id)
		}
		ids[id] = true
		if d.ExpirationDate != "" {
			expiring++
		}
	}
	for _, d := range m.Documents {
		if d.Supersedes != "" && !ids[d.Supersedes] {
			t.Errorf("%s supersedes unknown document %s", d.Title, d.Supersedes)
		}
	}
	if expiring != 1 {
		t.Fatalf("expiring documents = %d", expiring)
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acts.yaml")
	if err := os.WriteFile(path, []byte(manifestYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := Load(context.Background(), FileSource(path))
	if err != nil || len(m.Documents) != 1 {
		t.Fatalf("load = %+v, %v", m, err)
	}
	if _, err := Load(context.Background(), FileSource(filepath.Join(t.TempDir(), "missing.yaml"))); err == nil {
		t.Fatal("expected error for missing file")
	}
}

type fakeS3 struct {
	body string
	err  error
	in   *s3.GetObjectInput
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

func TestS3Source(t *testing.T) {
	client := &fakeS3{body: manifestYAML}
	src := S3Source{Client: client, Bucket: "legislation", Key: "2024/acts.yaml"}
	if src.Name() != "s3://legislation/2024/acts.yaml" {
		t.Fatalf("name = %s", src.Name())
	}
	m, err := Load(context.Background(), src)
	if err != nil || len(m.Documents) != 1 {
		t.Fatalf("load = %+v, %v", m, err)
	}
	if *client.in.Bucket != "legislation" || *client.in.Key != "2024/acts.yaml" {
		t.Fatalf("request = %+v", client.in)
	}

	client.err = errors.New("access denied")
	if _, err := Load(context.Background(), src); err == nil || !strings.Contains(err.Error(), "access denied") {
		t.Fatalf("err = %v", err)
	}
}
