package credstore

import (
	"context"
	"errors"
	"testing"
)

func TestInMemoryCredentialsRoundTrip(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if _, err := s.GetCredentials(ctx, "user@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetCredentials on empty store error = %v, want ErrNotFound", err)
	}

	if err := s.SaveCredentials(ctx, Credentials{Account: "user@example.com", Secret: "hunter2"}); err != nil {
		t.Fatalf("SaveCredentials() error = %v", err)
	}
	got, err := s.GetCredentials(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("GetCredentials() error = %v", err)
	}
	if got.Secret != "hunter2" || got.SavedAt.IsZero() {
		t.Fatalf("credentials = %+v", got)
	}

	// Overwrite keeps the original SavedAt, refreshes UpdatedAt.
	if err := s.SaveCredentials(ctx, Credentials{Account: "user@example.com", Secret: "correcthorse"}); err != nil {
		t.Fatalf("SaveCredentials() overwrite error = %v", err)
	}
	updated, err := s.GetCredentials(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("GetCredentials() error = %v", err)
	}
	if updated.Secret != "correcthorse" {
		t.Fatalf("Secret = %q, want overwritten", updated.Secret)
	}
	if !updated.SavedAt.Equal(got.SavedAt) {
		t.Fatalf("SavedAt changed on overwrite")
	}
}

func TestInMemoryPortalState(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	has, err := s.HasPortalState(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("HasPortalState() error = %v", err)
	}
	if has {
		t.Fatalf("HasPortalState() = true on empty store")
	}

	if err := s.SavePortalState(ctx, PortalState{Account: "user@example.com", Payload: []byte("cookies")}); err != nil {
		t.Fatalf("SavePortalState() error = %v", err)
	}
	has, err = s.HasPortalState(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("HasPortalState() error = %v", err)
	}
	if !has {
		t.Fatalf("HasPortalState() = false after save")
	}

	state, err := s.GetPortalState(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("GetPortalState() error = %v", err)
	}
	if string(state.Payload) != "cookies" || state.SavedAt.IsZero() {
		t.Fatalf("state = %+v", state)
	}
}
