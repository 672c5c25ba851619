package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dexcon/dexc/internal/contract"
)

var ErrNotFound = errors.New("store: not found")

// Memory is the in-memory Store. Safe for concurrent use; negotiations
// running in parallel share one instance.
type Memory struct {
	mu         sync.RWMutex
	agreements map[string]contract.Agreement
	links      map[string][]string
	metadata   map[string]Metadata
	artifacts  map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{
		agreements: make(map[string]contract.Agreement),
		links:      make(map[string][]string),
		metadata:   make(map[string]Metadata),
		artifacts:  make(map[string][]byte),
	}
}

func (m *Memory) SaveAgreement(_ context.Context, ag contract.Agreement) (string, error) {
	if ag.ID == "" {
		return "", fmt.Errorf("store: agreement without id")
	}
	m.mu.Lock()
	m.agreements[ag.ID] = ag
	m.mu.Unlock()
	return ag.ID, nil
}

func (m *Memory) ResolveAgreement(_ context.Context, ref string) (contract.Agreement, error) {
	m.mu.RLock()
	ag, ok := m.agreements[ref]
	m.mu.RUnlock()
	if !ok {
		return contract.Agreement{}, fmt.Errorf("%w: agreement %s", ErrNotFound, ref)
	}
	return ag, nil
}

func (m *Memory) RevokeAgreement(_ context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ag, ok := m.agreements[ref]
	if !ok {
		return fmt.Errorf("%w: agreement %s", ErrNotFound, ref)
	}
	ag.Revoked = true
	m.agreements[ref] = ag
	return nil
}

func (m *Memory) LinkArtifacts(_ context.Context, agreementID string, artifacts []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agreements[agreementID]; !ok {
		return fmt.Errorf("%w: agreement %s", ErrNotFound, agreementID)
	}
	m.links[agreementID] = append(m.links[agreementID], artifacts...)
	return nil
}

func (m *Memory) SaveMetadata(_ context.Context, meta Metadata) error {
	if meta.Element == "" {
		return fmt.Errorf("store: metadata without element uri")
	}
	m.mu.Lock()
	m.metadata[meta.Element] = meta
	m.mu.Unlock()
	return nil
}

func (m *Memory) SaveArtifact(_ context.Context, artifactID string, data []byte) error {
	if artifactID == "" {
		return fmt.Errorf("store: artifact without id")
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	m.mu.Lock()
	m.artifacts[artifactID] = buf
	m.mu.Unlock()
	return nil
}

// LinkedArtifacts returns the artifact URIs linked to one agreement.
func (m *Memory) LinkedArtifacts(agreementID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.links[agreementID]))
	copy(out, m.links[agreementID])
	return out
}

// ArtifactData returns stored artifact bytes.
func (m *Memory) ArtifactData(artifactID string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.artifacts[artifactID]
	return data, ok
}

// MetadataFor returns the stored description for one element.
func (m *Memory) MetadataFor(element string) (Metadata, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	meta, ok := m.metadata[element]
	return meta, ok
}
