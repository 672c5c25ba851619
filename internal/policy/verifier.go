// Package policy gates provider-side artifact release. The verifier is a
// pure function of (artifact, issuer, agreement) plus the clock; it mutates
// nothing and returns exactly Allowed or Denied, never a partial grant.
package policy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dexcon/dexc/internal/contract"
)

// Decision is the two-valued verification result.
type Decision int

const (
	Denied Decision = iota
	Allowed
)

func (d Decision) String() string {
	if d == Allowed {
		return "allowed"
	}
	return "denied"
}

var ErrAgreementUnresolved = errors.New("policy: agreement not resolvable")

// AgreementResolver loads a referenced agreement. Resolution failure is a
// hard error for the caller, not a denial.
type AgreementResolver interface {
	ResolveAgreement(ctx context.Context, ref string) (contract.Agreement, error)
}

// RuleEvaluator decides whether one target's rules grant access right now.
// The rule language's semantics live behind this interface; the verifier
// only consumes its pass/fail answer.
type RuleEvaluator interface {
	Evaluate(rules contract.TargetRules, now time.Time) bool
}

// Verifier runs the provider-side access check before an artifact leaves
// the connector.
type Verifier struct {
	resolver AgreementResolver
	eval     RuleEvaluator
	now      func() time.Time
	log      zerolog.Logger
}

func NewVerifier(resolver AgreementResolver, eval RuleEvaluator, log zerolog.Logger) *Verifier {
	if eval == nil {
		eval = IntervalEvaluator{}
	}
	return &Verifier{
		resolver: resolver,
		eval:     eval,
		now:      time.Now,
		log:      log.With().Str("component", "verifier").Logger(),
	}
}

// Verify checks whether issuer may receive artifact under the referenced
// transfer contract. No contract reference means no access, decided before
// any resolution happens. An inactive, revoked, or foreign agreement
// denies; a reference that cannot be resolved errors instead.
func (v *Verifier) Verify(ctx context.Context, artifact, issuer, transferContract string) (Decision, error) {
	if transferContract == "" {
		v.log.Debug().Str("artifact", artifact).Msg("deny: no transfer contract reference")
		return Denied, nil
	}

	ag, err := v.resolver.ResolveAgreement(ctx, transferContract)
	if err != nil {
		return Denied, fmt.Errorf("%w: %s: %v", ErrAgreementUnresolved, transferContract, err)
	}

	now := v.now()
	switch {
	case ag.Revoked:
		v.log.Info().Str("agreement", ag.ID).Msg("deny: agreement revoked")
		return Denied, nil
	case !ag.Active(now):
		v.log.Info().Str("agreement", ag.ID).Msg("deny: agreement outside validity window")
		return Denied, nil
	case ag.Consumer != issuer:
		v.log.Info().
			Str("agreement", ag.ID).
			Str("issuer", issuer).
			Msg("deny: issuer is not the agreement consumer")
		return Denied, nil
	}

	rules, ok := contract.GroupByTarget(ag.Contract)[artifact]
	if !ok || rules.Empty() {
		v.log.Info().
			Str("agreement", ag.ID).
			Str("artifact", artifact).
			Msg("deny: no rule targets artifact")
		return Denied, nil
	}

	if !v.eval.Evaluate(rules, now) {
		v.log.Info().Str("agreement", ag.ID).Str("artifact", artifact).Msg("deny: rules not satisfied")
		return Denied, nil
	}
	return Allowed, nil
}

// IntervalEvaluator is the default rule evaluator: a permission passes when
// every one of its constraints holds, and any prohibition whose constraints
// hold overrides all permissions. Unconstrained permissions always pass;
// unknown constraint kinds never do.
type IntervalEvaluator struct{}

func (IntervalEvaluator) Evaluate(rules contract.TargetRules, now time.Time) bool {
	for _, p := range rules.Prohibitions {
		if constraintsHold(p.Constraints, now) {
			return false
		}
	}
	for _, p := range rules.Permissions {
		if constraintsHold(p.Constraints, now) {
			return true
		}
	}
	return false
}

func constraintsHold(cs []contract.Constraint, now time.Time) bool {
	for _, c := range cs {
		if !constraintHolds(c, now) {
			return false
		}
	}
	return true
}

func constraintHolds(c contract.Constraint, now time.Time) bool {
	if c.Left != "dateTime" {
		return false
	}
	ref, err := time.Parse(time.RFC3339, c.Right)
	if err != nil {
		return false
	}
	switch c.Operator {
	case "after":
		return now.After(ref)
	case "before":
		return now.Before(ref)
	}
	return false
}
