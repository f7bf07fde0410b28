package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

// TestLatestHistoryEmpty verifies ErrNotFound for identities with no events.
func TestLatestHistoryEmpty(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.LatestHistory(context.Background(), "123456789012")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// TestLatestHistoryOrdering verifies that the most recent entry wins.
func TestLatestHistoryOrdering(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	if err := s.CreateIdentity(ctx, testIdentity("123456789012")); err != nil {
		t.Fatalf("CreateIdentity failed: %v", err)
	}

	base := time.Now()

	// Enter, then exit, via two committed transitions.
	if err := s.SetNonce(ctx, "123456789012", "n1"); err != nil {
		t.Fatalf("SetNonce failed: %v", err)
	}
	if err := s.CommitTransition(ctx, "123456789012", StatusOutside, StatusInside, "n1", "IN", base); err != nil {
		t.Fatalf("enter commit failed: %v", err)
	}

	if err := s.SetNonce(ctx, "123456789012", "n2"); err != nil {
		t.Fatalf("SetNonce failed: %v", err)
	}
	if err := s.CommitTransition(ctx, "123456789012", StatusInside, StatusOutside, "n2", "OUT", base.Add(time.Minute)); err != nil {
		t.Fatalf("exit commit failed: %v", err)
	}

	entry, err := s.LatestHistory(ctx, "123456789012")
	if err != nil {
		t.Fatalf("LatestHistory failed: %v", err)
	}
	if entry.Action != "OUT" {
		t.Errorf("expected latest action OUT, got %q", entry.Action)
	}
}
