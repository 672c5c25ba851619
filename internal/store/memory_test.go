package store

import (
	"context"
	"errors"
	"testing"

	"github.com/dexcon/dexc/internal/contract"
)

func testAgreement(id string) contract.Agreement {
	return contract.Agreement{Contract: contract.Contract{
		ID:       id,
		Consumer: "https://consumer.example.org/connector",
		Permissions: []contract.Rule{
			{Target: "https://provider.example.org/artifacts/1", Action: contract.ActionUse},
		},
	}}
}

func TestSaveAndResolveAgreement(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	id, err := m.SaveAgreement(ctx, testAgreement("urn:dexc:agreement:1"))
	if err != nil {
		t.Fatalf("SaveAgreement: %v", err)
	}
	if id != "urn:dexc:agreement:1" {
		t.Fatalf("saved id: %q", id)
	}

	ag, err := m.ResolveAgreement(ctx, id)
	if err != nil {
		t.Fatalf("ResolveAgreement: %v", err)
	}
	if ag.ID != id || len(ag.Permissions) != 1 {
		t.Fatalf("resolved: %+v", ag)
	}

	if _, err := m.SaveAgreement(ctx, contract.Agreement{}); err == nil {
		t.Fatalf("agreement without id accepted")
	}
	if _, err := m.ResolveAgreement(ctx, "urn:dexc:agreement:ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown ref: got %v, want ErrNotFound", err)
	}
}

func TestRevokeAgreement(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	id, _ := m.SaveAgreement(ctx, testAgreement("urn:dexc:agreement:1"))

	if err := m.RevokeAgreement(ctx, id); err != nil {
		t.Fatalf("RevokeAgreement: %v", err)
	}
	ag, err := m.ResolveAgreement(ctx, id)
	if err != nil {
		t.Fatalf("ResolveAgreement: %v", err)
	}
	if !ag.Revoked {
		t.Fatalf("agreement not marked revoked")
	}

	if err := m.RevokeAgreement(ctx, "urn:dexc:agreement:ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown ref: got %v, want ErrNotFound", err)
	}
}

func TestLinkArtifacts(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	id, _ := m.SaveAgreement(ctx, testAgreement("urn:dexc:agreement:1"))

	if err := m.LinkArtifacts(ctx, id, []string{"https://provider.example.org/artifacts/1"}); err != nil {
		t.Fatalf("LinkArtifacts: %v", err)
	}
	if err := m.LinkArtifacts(ctx, id, []string{"https://provider.example.org/artifacts/2"}); err != nil {
		t.Fatalf("second LinkArtifacts: %v", err)
	}
	got := m.LinkedArtifacts(id)
	if len(got) != 2 {
		t.Fatalf("linked: %v", got)
	}

	if err := m.LinkArtifacts(ctx, "urn:dexc:agreement:ghost", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("link to unknown agreement: got %v, want ErrNotFound", err)
	}
}

func TestSaveMetadataAndArtifact(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	meta := Metadata{
		Element:   "https://provider.example.org/resources/1",
		Artifacts: []string{"https://provider.example.org/artifacts/1"},
	}
	if err := m.SaveMetadata(ctx, meta); err != nil {
		t.Fatalf("SaveMetadata: %v", err)
	}
	got, ok := m.MetadataFor(meta.Element)
	if !ok || len(got.Artifacts) != 1 {
		t.Fatalf("MetadataFor: %+v ok=%v", got, ok)
	}
	if err := m.SaveMetadata(ctx, Metadata{}); err == nil {
		t.Fatalf("metadata without element accepted")
	}

	data := []byte("payload bytes")
	if err := m.SaveArtifact(ctx, "https://provider.example.org/artifacts/1", data); err != nil {
		t.Fatalf("SaveArtifact: %v", err)
	}
	data[0] = 'X'
	stored, ok := m.ArtifactData("https://provider.example.org/artifacts/1")
	if !ok || string(stored) != "payload bytes" {
		t.Fatalf("artifact aliases caller buffer: %q ok=%v", stored, ok)
	}
	if err := m.SaveArtifact(ctx, "", nil); err == nil {
		t.Fatalf("artifact without id accepted")
	}
}
