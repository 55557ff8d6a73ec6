package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }

	t.Run("missing_key", func(t *testing.T) {
		if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() error = %v, want %v", err, ErrNotFound)
		}
	})

	t.Run("set_and_get", func(t *testing.T) {
		if err := store.Set(ctx, "token", "abc", 0); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		got, err := store.Get(ctx, "token")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got != "abc" {
			t.Errorf("Get() = %q, want %q", got, "abc")
		}
	})

	t.Run("overwrite", func(t *testing.T) {
		_ = store.Set(ctx, "token", "abc", 0)
		_ = store.Set(ctx, "token", "xyz", 0)
		if got, _ := store.Get(ctx, "token"); got != "xyz" {
			t.Errorf("Get() = %q, want %q", got, "xyz")
		}
	})

	t.Run("expiry", func(t *testing.T) {
		_ = store.Set(ctx, "state", "nonce", time.Minute)
		if _, err := store.Get(ctx, "state"); err != nil {
			t.Fatalf("Get() before expiry error = %v", err)
		}
		now = now.Add(2 * time.Minute)
		if _, err := store.Get(ctx, "state"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() after expiry error = %v, want %v", err, ErrNotFound)
		}
	})

	t.Run("delete", func(t *testing.T) {
		_ = store.Set(ctx, "token", "abc", 0)
		if err := store.Delete(ctx, "token"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if err := store.Delete(ctx, "token"); err != nil {
			t.Errorf("Delete() of missing key error = %v", err)
		}
		if _, err := store.Get(ctx, "token"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() after delete error = %v, want %v", err, ErrNotFound)
		}
	})
}

func TestUnavailable(t *testing.T) {
	ctx := context.Background()
	store := Unavailable()

	if _, err := store.Get(ctx, "token"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Get() error = %v, want %v", err, ErrUnavailable)
	}
	if err := store.Set(ctx, "token", "abc", 0); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Set() error = %v, want %v", err, ErrUnavailable)
	}
	if err := store.Delete(ctx, "token"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Delete() error = %v, want %v", err, ErrUnavailable)
	}
	if err := store.CheckHealth(ctx); !errors.Is(err, ErrUnavailable) {
		t.Errorf("CheckHealth() error = %v, want %v", err, ErrUnavailable)
	}
}
