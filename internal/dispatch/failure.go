package dispatch

import (
	"fmt"

	"github.com/dexcon/dexc/internal/message"
)

// FailureKind classifies everything that can go wrong in one exchange.
// Local failures (build, encode, classification) are converted at the
// boundary that detects them; nothing propagates unclassified.
type FailureKind string

const (
	FailHeaderBuild        FailureKind = "header_build"
	FailEncodeDecode       FailureKind = "encode_decode"
	FailEmptyMessage       FailureKind = "empty_message"
	FailUnsupportedVersion FailureKind = "unsupported_version"
	FailRejectedByPeer     FailureKind = "rejected_by_peer"
	FailUnexpectedResponse FailureKind = "unexpected_response"
	FailTimeout            FailureKind = "transport_timeout"
	FailTransportIO        FailureKind = "transport_io"
	FailTokenInvalid       FailureKind = "token_invalid"
	FailAccessDenied       FailureKind = "access_denied"
	FailContractMismatch   FailureKind = "contract_mismatch"
	FailMissingTarget      FailureKind = "missing_target"
	FailEmptyRuleList      FailureKind = "empty_rule_list"
)

// Failure is one typed exchange failure. Reason and Detail are populated
// when the peer answered with a structured rejection.
type Failure struct {
	Kind   FailureKind
	Reason message.RejectionReason
	Detail string
	Err    error
}

func (f *Failure) Error() string {
	switch {
	case f.Reason != "":
		return fmt.Sprintf("dispatch: %s (%s)", f.Kind, f.Reason)
	case f.Err != nil:
		return fmt.Sprintf("dispatch: %s: %v", f.Kind, f.Err)
	}
	return fmt.Sprintf("dispatch: %s", f.Kind)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Retryable reports whether a caller-driven retry could help. Only the
// transient transport kinds qualify; the client itself never retries
// because idempotency is known only to the caller.
func (f *Failure) Retryable() bool {
	return f.Kind == FailTimeout || f.Kind == FailTransportIO
}

func fail(kind FailureKind, err error) *Failure {
	return &Failure{Kind: kind, Err: err}
}
