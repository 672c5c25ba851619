package message

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/dexcon/dexc/internal/multipart"
)

var (
	ErrEmptyMessage       = errors.New("message: empty response")
	ErrUnsupportedVersion = errors.New("message: unsupported model version")
	ErrTokenInvalid       = errors.New("message: security token rejected")
	ErrMalformedHeader    = errors.New("message: malformed header part")
)

// Class is the classifier verdict for one inbound envelope.
type Class int

const (
	// ClassExpected means the header kind matches the awaited kind.
	ClassExpected Class = iota
	// ClassRejected means the peer answered with a rejection message.
	ClassRejected
	// ClassUnexpected means the kind is neither awaited nor a rejection;
	// callers treat this as a hard failure, never a silent no-op.
	ClassUnexpected
	// ClassMalformed means the header part was absent or undeserializable.
	ClassMalformed
)

func (c Class) String() string {
	switch c {
	case ClassExpected:
		return "expected"
	case ClassRejected:
		return "rejected"
	case ClassUnexpected:
		return "unexpected"
	case ClassMalformed:
		return "malformed"
	}
	return fmt.Sprintf("class(%d)", int(c))
}

// Result is the classifier output. Header is populated for every class
// except ClassMalformed; Reason and Detail are set when the peer rejected.
type Result struct {
	Class  Class
	Header Header
	Reason RejectionReason
	Detail string
}

// TokenValidator checks the security token embedded in an inbound header.
type TokenValidator interface {
	Validate(raw string) error
}

// Classifier validates inbound envelopes against the local connector's
// inbound-version set and token policy, then matches the header kind
// against the one kind the caller awaits.
type Classifier struct {
	inbound map[string]struct{}
	tokens  TokenValidator
	log     zerolog.Logger
}

// NewClassifier builds a classifier accepting the given model versions.
// An empty version list falls back to InboundVersions.
func NewClassifier(versions []string, tokens TokenValidator, log zerolog.Logger) *Classifier {
	if len(versions) == 0 {
		versions = InboundVersions
	}
	set := make(map[string]struct{}, len(versions))
	for _, v := range versions {
		set[v] = struct{}{}
	}
	return &Classifier{
		inbound: set,
		tokens:  tokens,
		log:     log.With().Str("component", "classifier").Logger(),
	}
}

// Classify inspects one decoded envelope. The cross-cutting checks run
// first: a missing or empty header part short-circuits to ErrEmptyMessage,
// an undeserializable one to ClassMalformed, a foreign model version to
// ErrUnsupportedVersion, and a bad token to ErrTokenInvalid. Only then is
// the kind compared against want. Every input yields exactly one class.
func (c *Classifier) Classify(env multipart.Envelope, want Kind) (Result, error) {
	raw := env.Header()
	if len(raw) == 0 {
		return Result{Class: ClassMalformed}, ErrEmptyMessage
	}

	h, err := DecodeHeader(raw)
	if err != nil {
		c.log.Warn().Err(err).Msg("inbound header not deserializable")
		return Result{Class: ClassMalformed}, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}

	if _, ok := c.inbound[h.ModelVersion]; !ok {
		c.log.Warn().
			Str("model_version", h.ModelVersion).
			Str("issuer", h.Issuer).
			Msg("inbound model version not supported")
		return Result{Class: ClassUnexpected, Header: h},
			fmt.Errorf("%w: %s", ErrUnsupportedVersion, h.ModelVersion)
	}

	if c.tokens != nil {
		if err := c.tokens.Validate(h.SecurityToken); err != nil {
			c.log.Warn().Err(err).Str("issuer", h.Issuer).Msg("inbound token rejected")
			return Result{Class: ClassUnexpected, Header: h},
				fmt.Errorf("%w: %v", ErrTokenInvalid, err)
		}
	}

	if h.Kind == KindRejection {
		res := Result{
			Class:  ClassRejected,
			Header: h,
			Reason: h.RejectionReason,
			Detail: excerpt(env.Payload()),
		}
		c.log.Debug().
			Str("reason", string(res.Reason)).
			Str("correlation", h.CorrelationID).
			Msg("peer rejected request")
		return res, nil
	}

	if h.Kind == want {
		return Result{Class: ClassExpected, Header: h}, nil
	}

	c.log.Warn().
		Str("got", string(h.Kind)).
		Str("want", string(want)).
		Msg("unexpected response kind")
	return Result{Class: ClassUnexpected, Header: h}, nil
}

// excerpt trims a rejection payload down to a short human-readable string.
func excerpt(payload []byte) string {
	const max = 256
	if len(payload) == 0 {
		return ""
	}
	if !utf8.Valid(payload) {
		return fmt.Sprintf("(%d bytes of non-text payload)", len(payload))
	}
	s := string(payload)
	if len(s) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return s
}
