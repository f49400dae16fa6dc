package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.Put(ctx, "user-1/1700000000000_notes.pdf", strings.NewReader("%PDF-1.4"), 8, "application/pdf"); err != nil {
		t.Fatalf("put: %v", err)
	}
	data, err := s.Get(ctx, "user-1/1700000000000_notes.pdf")
	if err != nil || string(data) != "%PDF-1.4" {
		t.Fatalf("get: data=%q err=%v", data, err)
	}
	if got := s.ContentType("user-1/1700000000000_notes.pdf"); got != "application/pdf" {
		t.Fatalf("content type = %q", got)
	}
	if err := s.Delete(ctx, "user-1/1700000000000_notes.pdf"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "user-1/1700000000000_notes.pdf"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound after delete, got %v", err)
	}
}
