// Package storage provides the key/value slots that back per-profile dashboard state
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the key has no value or its value expired
	ErrNotFound = errors.New("key not found")

	// ErrUnavailable indicates no persistent storage is configured
	ErrUnavailable = errors.New("storage unavailable")
)

// Store holds string values under string keys with optional expiry
type Store interface {
	// Get returns the value stored under key or ErrNotFound
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key. A zero ttl keeps the value until deleted.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// CheckHealth verifies the store is operational
	CheckHealth(ctx context.Context) error
}

// Unavailable returns a Store that fails every call with ErrUnavailable.
// Callers that must tolerate missing storage treat the error as a no-op.
func Unavailable() Store {
	return unavailable{}
}

type unavailable struct{}

func (unavailable) Get(context.Context, string) (string, error) {
	return "", ErrUnavailable
}

func (unavailable) Set(context.Context, string, string, time.Duration) error {
	return ErrUnavailable
}

func (unavailable) Delete(context.Context, string) error {
	return ErrUnavailable
}

func (unavailable) CheckHealth(context.Context) error {
	return ErrUnavailable
}
