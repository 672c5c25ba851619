// Package store declares the persistence collaborator consumed by the
// exchange engine and ships a mutex-guarded in-memory implementation for
// daemons and tests that run without an external database.
package store

import (
	"context"

	"github.com/dexcon/dexc/internal/contract"
)

// Metadata is one persisted resource description: the raw description
// document returned by a peer plus the artifact URIs it introduced.
type Metadata struct {
	Element      string
	Document     []byte
	Artifacts    []string
	AutoDownload bool
	Remote       string
}

// Agreements persists and resolves contract agreements.
type Agreements interface {
	SaveAgreement(ctx context.Context, ag contract.Agreement) (string, error)
	ResolveAgreement(ctx context.Context, ref string) (contract.Agreement, error)
	RevokeAgreement(ctx context.Context, ref string) error
	LinkArtifacts(ctx context.Context, agreementID string, artifacts []string) error
}

// Artifacts persists downloaded resource metadata and artifact bytes.
type Artifacts interface {
	SaveMetadata(ctx context.Context, meta Metadata) error
	SaveArtifact(ctx context.Context, artifactID string, data []byte) error
}

// Store is the full persistence surface the orchestrator requires.
type Store interface {
	Agreements
	Artifacts
}
