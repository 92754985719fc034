package ingest

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

//go:embed sample_corpus.yaml
var sampleCorpus []byte

// Source yields the bytes of one manifest.
type Source interface {
	Name() string
	Read(ctx context.Context) ([]byte, error)
}

// Load reads and parses the manifest behind src.
func Load(ctx context.Context, src Source) (Manifest, error) {
	data, err := src.Read(ctx)
	if err != nil {
		return Manifest{}, fmt.Errorf("ingest: read %s: %w", src.Name(), err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return Manifest{}, fmt.Errorf("%s: %w", src.Name(), err)
	}
	return m, nil
}

// FileSource is a manifest on the local filesystem.
type FileSource string

func (f FileSource) Name() string { return string(f) }

func (f FileSource) Read(context.Context) ([]byte, error) { return os.ReadFile(string(f)) }

// SampleSource is the built-in sample corpus: paired 2024 and 2025 acts on
// five subjects plus one act that has already expired.
type SampleSource struct{}

func (SampleSource) Name() string { return "sample corpus" }

func (SampleSource) Read(context.Context) ([]byte, error) { return sampleCorpus, nil }

// ObjectGetter is the part of the S3 client a S3Source needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source is a manifest stored as an object in a bucket.
type S3Source struct {
	Client ObjectGetter
	Bucket string
	Key    string
}

func (s S3Source) Name() string { return "s3://" + s.Bucket + "/" + s.Key }

func (s S3Source) Read(ctx context.Context) ([]byte, error) {
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// S3Config selects the bucket region, an optional S3-compatible endpoint,
// and optional static credentials. Without credentials the default AWS
// chain (environment, shared config, instance role) is used.
type S3Config struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// NewS3Client builds an S3 client from cfg.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}
