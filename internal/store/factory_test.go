package store

import (
	"context"
	"testing"
)

func TestNewStore_Memory(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(ctx, "memory", "")
	if err != nil {
		t.Fatalf("NewStore('memory') failed: %v", err)
	}
	if store == nil {
		t.Fatal("Expected non-nil store")
	}

	if err := store.SaveDocument(ctx, DocumentRecord{Kind: KindFlow, ID: "f1", Body: []byte(`{}`)}); err != nil {
		t.Fatalf("SaveDocument failed: %v", err)
	}
	docs, err := store.ListDocuments(ctx, KindFlow)
	if err != nil {
		t.Fatalf("ListDocuments failed: %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("Expected 1 document, got %d", len(docs))
	}

	store.Close()
}

func TestNewStore_UnsupportedType(t *testing.T) {
	ctx := context.Background()
	_, err := NewStore(ctx, "invalid-type", "")
	if err == nil {
		t.Fatal("Expected error for unsupported store type")
	}
	expectedMsg := "unsupported store type: invalid-type"
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message '%s', got '%s'", expectedMsg, err.Error())
	}
}

func TestNewStore_PostgresInvalidDSN(t *testing.T) {
	ctx := context.Background()
	if _, err := NewStore(ctx, "postgres", "not a dsn"); err == nil {
		t.Fatal("Expected error for malformed DSN")
	}
}
