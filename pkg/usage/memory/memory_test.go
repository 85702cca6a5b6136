package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/polygate-dev/polygate/pkg/usage"
)

func record(i int) usage.Record {
	return usage.Record{
		ID:           fmt.Sprintf("chatcmpl-%024d", i),
		Model:        "openai:gpt-4o",
		InputTokens:  i,
		OutputTokens: i * 2,
		CreatedAt:    time.Unix(int64(1700000000+i), 0),
	}
}

func TestSaveAndList(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	for i := range 3 {
		if err := s.Save(ctx, record(i)); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	got, err := s.List(ctx, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	// Newest first.
	if got[0].ID != record(2).ID || got[2].ID != record(0).ID {
		t.Errorf("order = [%s %s %s]", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestListLimit(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	for i := range 5 {
		s.Save(ctx, record(i))
	}

	got, err := s.List(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != record(4).ID {
		t.Errorf("List(2) = %v", got)
	}
}

func TestEviction(t *testing.T) {
	s := New(2)
	ctx := context.Background()
	for i := range 3 {
		s.Save(ctx, record(i))
	}

	got, err := s.List(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 after eviction", len(got))
	}
	if got[1].ID != record(1).ID {
		t.Errorf("oldest remaining = %s, want %s", got[1].ID, record(1).ID)
	}
}
