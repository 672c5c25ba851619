package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dexcon/dexc/internal/contract"
	"github.com/dexcon/dexc/internal/testutil/testlog"
)

const (
	verifyArtifact = "https://provider.example.org/artifacts/1"
	verifyConsumer = "https://consumer.example.org/connector"
	agreementRef   = "urn:dexc:agreement:1"
)

type resolverFunc func(ctx context.Context, ref string) (contract.Agreement, error)

func (f resolverFunc) ResolveAgreement(ctx context.Context, ref string) (contract.Agreement, error) {
	return f(ctx, ref)
}

func fixedResolver(ag contract.Agreement) resolverFunc {
	return func(_ context.Context, ref string) (contract.Agreement, error) {
		if ref != ag.ID {
			return contract.Agreement{}, errors.New("no such agreement")
		}
		return ag, nil
	}
}

func usableAgreement() contract.Agreement {
	return contract.Agreement{Contract: contract.Contract{
		ID:          agreementRef,
		Consumer:    verifyConsumer,
		Provider:    "https://provider.example.org/connector",
		Permissions: []contract.Rule{{Target: verifyArtifact, Action: contract.ActionUse}},
	}}
}

func newTestVerifier(t *testing.T, ag contract.Agreement) *Verifier {
	t.Helper()
	return NewVerifier(fixedResolver(ag), nil, testlog.New(t))
}

func TestVerifyAllows(t *testing.T) {
	v := newTestVerifier(t, usableAgreement())
	d, err := v.Verify(context.Background(), verifyArtifact, verifyConsumer, agreementRef)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if d != Allowed {
		t.Fatalf("decision: %s", d)
	}
}

func TestVerifyDeniesWithoutReference(t *testing.T) {
	v := NewVerifier(resolverFunc(func(context.Context, string) (contract.Agreement, error) {
		t.Fatalf("resolver consulted for empty reference")
		return contract.Agreement{}, nil
	}), nil, testlog.New(t))

	d, err := v.Verify(context.Background(), verifyArtifact, verifyConsumer, "")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if d != Denied {
		t.Fatalf("decision: %s", d)
	}
}

func TestVerifyUnresolvableReferenceErrors(t *testing.T) {
	v := newTestVerifier(t, usableAgreement())
	d, err := v.Verify(context.Background(), verifyArtifact, verifyConsumer, "urn:dexc:agreement:ghost")
	if !errors.Is(err, ErrAgreementUnresolved) {
		t.Fatalf("got %v, want ErrAgreementUnresolved", err)
	}
	if d != Denied {
		t.Fatalf("decision: %s", d)
	}
}

func TestVerifyDeniesRevoked(t *testing.T) {
	ag := usableAgreement()
	ag.Revoked = true
	d, err := newTestVerifier(t, ag).Verify(context.Background(), verifyArtifact, verifyConsumer, agreementRef)
	if err != nil || d != Denied {
		t.Fatalf("revoked: decision=%s err=%v", d, err)
	}
}

func TestVerifyDeniesOutsideValidityWindow(t *testing.T) {
	expired := usableAgreement()
	expired.NotAfter = time.Now().Add(-time.Hour)
	d, err := newTestVerifier(t, expired).Verify(context.Background(), verifyArtifact, verifyConsumer, agreementRef)
	if err != nil || d != Denied {
		t.Fatalf("expired: decision=%s err=%v", d, err)
	}

	pending := usableAgreement()
	pending.NotBefore = time.Now().Add(time.Hour)
	d, err = newTestVerifier(t, pending).Verify(context.Background(), verifyArtifact, verifyConsumer, agreementRef)
	if err != nil || d != Denied {
		t.Fatalf("not yet valid: decision=%s err=%v", d, err)
	}
}

func TestVerifyDeniesForeignConsumer(t *testing.T) {
	v := newTestVerifier(t, usableAgreement())
	d, err := v.Verify(context.Background(), verifyArtifact, "https://rogue.example.org/connector", agreementRef)
	if err != nil || d != Denied {
		t.Fatalf("foreign consumer: decision=%s err=%v", d, err)
	}
}

func TestVerifyDeniesUntargetedArtifact(t *testing.T) {
	v := newTestVerifier(t, usableAgreement())
	d, err := v.Verify(context.Background(), "https://provider.example.org/artifacts/2", verifyConsumer, agreementRef)
	if err != nil || d != Denied {
		t.Fatalf("untargeted artifact: decision=%s err=%v", d, err)
	}
}

func TestVerifyIsDeterministic(t *testing.T) {
	v := newTestVerifier(t, usableAgreement())
	for i := 0; i < 5; i++ {
		d, err := v.Verify(context.Background(), verifyArtifact, verifyConsumer, agreementRef)
		if err != nil || d != Allowed {
			t.Fatalf("run %d: decision=%s err=%v", i, d, err)
		}
	}
}

func TestIntervalEvaluatorProhibitionOverrides(t *testing.T) {
	rules := contract.TargetRules{
		Permissions:  []contract.Rule{{Target: verifyArtifact, Action: contract.ActionUse}},
		Prohibitions: []contract.Rule{{Target: verifyArtifact, Action: contract.ActionUse}},
	}
	if (IntervalEvaluator{}).Evaluate(rules, time.Now()) {
		t.Fatalf("unconstrained prohibition did not override")
	}
}

func TestIntervalEvaluatorTimeWindow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	windowed := contract.TargetRules{Permissions: []contract.Rule{{
		Target: verifyArtifact,
		Action: contract.ActionUse,
		Constraints: []contract.Constraint{
			{Left: "dateTime", Operator: "after", Right: "2025-01-01T00:00:00Z"},
			{Left: "dateTime", Operator: "before", Right: "2026-01-01T00:00:00Z"},
		},
	}}}

	if !(IntervalEvaluator{}).Evaluate(windowed, now) {
		t.Fatalf("inside window denied")
	}
	if (IntervalEvaluator{}).Evaluate(windowed, now.AddDate(2, 0, 0)) {
		t.Fatalf("outside window allowed")
	}
}

func TestIntervalEvaluatorUnknownConstraintFailsClosed(t *testing.T) {
	rules := contract.TargetRules{Permissions: []contract.Rule{{
		Target:      verifyArtifact,
		Action:      contract.ActionUse,
		Constraints: []contract.Constraint{{Left: "absoluteSpatialPosition", Operator: "inside", Right: "somewhere"}},
	}}}
	if (IntervalEvaluator{}).Evaluate(rules, time.Now()) {
		t.Fatalf("unknown constraint kind allowed")
	}
}

func TestVerifyTimeWindowedAgreement(t *testing.T) {
	ag := usableAgreement()
	ag.Permissions[0].Constraints = []contract.Constraint{
		{Left: "dateTime", Operator: "before", Right: "2025-01-01T00:00:00Z"},
	}
	v := newTestVerifier(t, ag)
	v.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	d, err := v.Verify(context.Background(), verifyArtifact, verifyConsumer, agreementRef)
	if err != nil || d != Allowed {
		t.Fatalf("inside constraint window: decision=%s err=%v", d, err)
	}

	v.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	d, err = v.Verify(context.Background(), verifyArtifact, verifyConsumer, agreementRef)
	if err != nil || d != Denied {
		t.Fatalf("outside constraint window: decision=%s err=%v", d, err)
	}
}
