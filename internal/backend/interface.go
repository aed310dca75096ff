// Package backend opens the durable side of the record store: an SQLite
// journal, or nothing at all for an in-memory store seeded from CSV.
package backend

import (
	"context"
	"slices"

	"steady/internal/store"
)

type (
	PingFunc    func(ctx context.Context) error
	CleanupFunc func() error
)

// BackendResult is a store restored from its backend. Cleanup is nil when
// there is nothing to release.
type BackendResult struct {
	Store   *store.Store
	Ping    PingFunc
	Cleanup CleanupFunc
}

type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

type Config struct {
	Type         BackendType
	SQLiteDBPath string
	// SeedCSVPath optionally preloads a memory backend.
	SeedCSVPath string
}

type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

var backendTypes = []BackendType{SQLiteBackend, MemoryBackend}

func (bt BackendType) String() string { return string(bt) }

func (bt BackendType) IsValid() bool { return slices.Contains(backendTypes, bt) }
