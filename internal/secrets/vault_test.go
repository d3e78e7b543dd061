package secrets

import (
	"context"
	"testing"
)

func TestDisabledStoreRoundTripsFromCache(t *testing.T) {
	s, err := NewStore(Config{Enabled: false})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	ctx := context.Background()

	if err := s.PutUpstreamToken(ctx, "tok-123"); err != nil {
		t.Fatalf("PutUpstreamToken: %v", err)
	}
	got, err := s.UpstreamToken(ctx)
	if err != nil {
		t.Fatalf("UpstreamToken: %v", err)
	}
	if got != "tok-123" {
		t.Fatalf("UpstreamToken = %q, want tok-123", got)
	}
}

func TestDisabledStoreStartsEmpty(t *testing.T) {
	s, err := NewStore(Config{Enabled: false})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	got, err := s.UpstreamToken(context.Background())
	if err != nil {
		t.Fatalf("UpstreamToken: %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty token before any Put, got %q", got)
	}
}
