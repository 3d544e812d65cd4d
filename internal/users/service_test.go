package users

import (
	"context"
	"errors"
	"testing"
)

func TestUpsertFromAuthAndGet(t *testing.T) {
	svc := NewService(NewMemoryRepo())

	user := User{ID: "google:1", Email: "a@example.com", FullName: "A"}
	if err := svc.UpsertFromAuth(context.Background(), user); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := svc.GetByID(context.Background(), "google:1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Email != "a@example.com" || got.FullName != "A" {
		t.Fatalf("unexpected user %+v", got)
	}
}

func TestUpsertFromAuthUpdatesExisting(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	seed := User{ID: "google:1", Email: "a@example.com", FullName: "A"}
	if err := svc.UpsertFromAuth(context.Background(), seed); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	updated := User{ID: "google:1", Email: "a@example.com", FullName: "A. Updated", PictureURL: "https://example.com/p.png"}
	if err := svc.UpsertFromAuth(context.Background(), updated); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := svc.GetByID(context.Background(), "google:1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.FullName != "A. Updated" || got.PictureURL == "" {
		t.Fatalf("expected updated profile, got %+v", got)
	}
}

func TestUpsertFromAuthValidation(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	if err := svc.UpsertFromAuth(context.Background(), User{Email: "a@example.com"}); err == nil {
		t.Fatalf("expected error for missing id")
	}
	if err := svc.UpsertFromAuth(context.Background(), User{ID: "google:1"}); err == nil {
		t.Fatalf("expected error for missing email")
	}
}

func TestGetByIDNotFound(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	if _, err := svc.GetByID(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
