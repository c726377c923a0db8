package storage

import (
	"testing"

	"github.com/andresuchdata/stockledger/internal/config"
)

func TestSplitEndpoint(t *testing.T) {
	tests := []struct {
		endpoint   string
		useSSL     bool
		wantHost   string
		wantSecure bool
	}{
		{"minio.local:9000", false, "minio.local:9000", false},
		{"s3.example.com", true, "s3.example.com", true},
		{"https://s3.example.com/", false, "s3.example.com", true},
		{"http://localhost:9000", true, "localhost:9000", false},
		{"//cdn.example.com", true, "cdn.example.com", true},
	}
	for _, tt := range tests {
		host, secure := splitEndpoint(tt.endpoint, tt.useSSL)
		if host != tt.wantHost || secure != tt.wantSecure {
			t.Errorf("splitEndpoint(%q, %v) = %q, %v; want %q, %v",
				tt.endpoint, tt.useSSL, host, secure, tt.wantHost, tt.wantSecure)
		}
	}
}

func TestNewS3ClientValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.StorageConfig
	}{
		{"no endpoint", config.StorageConfig{AccessKey: "a", SecretKey: "s", Bucket: "b"}},
		{"no credentials", config.StorageConfig{Endpoint: "localhost:9000", Bucket: "b"}},
		{"no bucket", config.StorageConfig{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewS3Client(tt.cfg); err == nil {
				t.Fatal("expected an error")
			}
		})
	}

	c, err := NewS3Client(config.StorageConfig{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s", Bucket: "audit"})
	if err != nil {
		t.Fatal(err)
	}
	if c.bucket != "audit" {
		t.Errorf("bucket = %q", c.bucket)
	}
}

func TestKey(t *testing.T) {
	if got := Key("", "a.xlsx"); got != "a.xlsx" {
		t.Errorf("Key without prefix = %q", got)
	}
	if got := Key("audit/", "a.xlsx"); got != "audit/a.xlsx" {
		t.Errorf("Key with prefix = %q", got)
	}
}
