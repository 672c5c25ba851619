// Package contract models usage contracts: the consumer-authored request,
// the provider-countersigned agreement, and the rules both carry.
package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrMissingTarget = errors.New("contract: rule without target")
	ErrEmptyRules    = errors.New("contract: no rules")
	ErrDecode        = errors.New("contract: document not deserializable")
)

// Action names what a rule permits or forbids.
type Action string

const (
	ActionUse        Action = "USE"
	ActionModify     Action = "MODIFY"
	ActionDistribute Action = "DISTRIBUTE"
	ActionDelete     Action = "DELETE"
	ActionLog        Action = "LOG"
	ActionNotify     Action = "NOTIFY"
)

// Constraint is one condition on a rule. Left names the checked property,
// Operator the comparison, Right the reference value.
type Constraint struct {
	Left     string `json:"leftOperand"`
	Operator string `json:"operator"`
	Right    string `json:"rightOperand"`
}

// Rule is a single usage-control statement scoped to one target artifact.
type Rule struct {
	ID          string       `json:"id,omitempty"`
	Target      string       `json:"target"`
	Action      Action       `json:"action"`
	Constraints []Constraint `json:"constraints,omitempty"`
}

// Contract is the shared shape of requests and agreements: two identities,
// a validity window, and three rule lists.
type Contract struct {
	ID           string    `json:"id"`
	Consumer     string    `json:"consumer"`
	Provider     string    `json:"provider"`
	NotBefore    time.Time `json:"notBefore"`
	NotAfter     time.Time `json:"notAfter"`
	Permissions  []Rule    `json:"permissions"`
	Prohibitions []Rule    `json:"prohibitions"`
	Obligations  []Rule    `json:"obligations"`
}

// Request is a consumer-authored contract draft.
type Request struct {
	Contract
}

// Agreement is the provider-countersigned, time-stamped final form.
type Agreement struct {
	Contract
	SignedAt time.Time `json:"signedAt"`
	Revoked  bool      `json:"revoked,omitempty"`
}

// Rules returns all three rule lists as one slice.
func (c Contract) Rules() []Rule {
	out := make([]Rule, 0, len(c.Permissions)+len(c.Prohibitions)+len(c.Obligations))
	out = append(out, c.Permissions...)
	out = append(out, c.Prohibitions...)
	out = append(out, c.Obligations...)
	return out
}

// Validate rejects contracts that carry no rules at all or any rule with a
// null target. Both are checked before any agreement is formed.
func (c Contract) Validate() error {
	rules := c.Rules()
	if len(rules) == 0 {
		return ErrEmptyRules
	}
	for i, r := range rules {
		if strings.TrimSpace(r.Target) == "" {
			return fmt.Errorf("%w: rule[%d] action=%s", ErrMissingTarget, i, r.Action)
		}
	}
	return nil
}

// Targets lists every distinct rule target in first-seen order.
func (c Contract) Targets() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range c.Rules() {
		if _, ok := seen[r.Target]; ok {
			continue
		}
		seen[r.Target] = struct{}{}
		out = append(out, r.Target)
	}
	return out
}

// Active reports whether the validity window contains now.
func (c Contract) Active(now time.Time) bool {
	if !c.NotBefore.IsZero() && now.Before(c.NotBefore) {
		return false
	}
	if !c.NotAfter.IsZero() && now.After(c.NotAfter) {
		return false
	}
	return true
}

// Countersign derives the agreement a provider returns for an accepted
// request. Rule content is carried over untouched so the consumer's
// content-equality check holds; only identity and timestamps are stamped.
func Countersign(req Request, provider string, now time.Time) (Agreement, error) {
	if err := req.Validate(); err != nil {
		return Agreement{}, err
	}
	ag := Agreement{Contract: req.Contract, SignedAt: now.UTC()}
	ag.ID = "urn:dexc:agreement:" + uuid.NewString()
	ag.Provider = provider
	if ag.NotBefore.IsZero() {
		ag.NotBefore = now.UTC()
	}
	return ag, nil
}

// RulesEqual compares the rule lists of two contracts by content after
// normalization: rule ids and list order are ignored, targets, actions,
// and constraints are not. This is the check a consumer runs on a received
// agreement against its own request.
func RulesEqual(a, b Contract) bool {
	return listEqual(a.Permissions, b.Permissions) &&
		listEqual(a.Prohibitions, b.Prohibitions) &&
		listEqual(a.Obligations, b.Obligations)
}

func listEqual(a, b []Rule) bool {
	if len(a) != len(b) {
		return false
	}
	na, nb := normalize(a), normalize(b)
	for i := range na {
		if na[i] != nb[i] {
			return false
		}
	}
	return true
}

// normalize renders rules into canonical comparable strings, sorted.
func normalize(rules []Rule) []string {
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		cs := make([]string, 0, len(r.Constraints))
		for _, c := range r.Constraints {
			cs = append(cs, c.Left+"|"+c.Operator+"|"+c.Right)
		}
		sort.Strings(cs)
		out = append(out, r.Target+"~"+string(r.Action)+"~"+strings.Join(cs, "~"))
	}
	sort.Strings(out)
	return out
}

// TargetRules groups one target's applicable rules by class.
type TargetRules struct {
	Permissions  []Rule
	Prohibitions []Rule
	Obligations  []Rule
}

// Empty reports whether no rule of any class applies.
func (t TargetRules) Empty() bool {
	return len(t.Permissions) == 0 && len(t.Prohibitions) == 0 && len(t.Obligations) == 0
}

// GroupByTarget buckets a contract's rules by target artifact URI so one
// artifact's rules can be evaluated independently of the rest.
func GroupByTarget(c Contract) map[string]TargetRules {
	out := make(map[string]TargetRules)
	for _, r := range c.Permissions {
		tr := out[r.Target]
		tr.Permissions = append(tr.Permissions, r)
		out[r.Target] = tr
	}
	for _, r := range c.Prohibitions {
		tr := out[r.Target]
		tr.Prohibitions = append(tr.Prohibitions, r)
		out[r.Target] = tr
	}
	for _, r := range c.Obligations {
		tr := out[r.Target]
		tr.Obligations = append(tr.Obligations, r)
		out[r.Target] = tr
	}
	return out
}

// DecodeRequest parses a contract request payload.
func DecodeRequest(raw []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return req, nil
}

// DecodeAgreement parses a contract agreement payload.
func DecodeAgreement(raw []byte) (Agreement, error) {
	var ag Agreement
	if err := json.Unmarshal(raw, &ag); err != nil {
		return Agreement{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return ag, nil
}
