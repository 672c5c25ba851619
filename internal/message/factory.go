package message

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Params carries the caller-supplied fields for one header build. Only the
// fields the requested kind requires are consulted; the rest are ignored.
type Params struct {
	Recipient         string
	CorrelationID     string
	RequestedElement  string
	RequestedArtifact string
	TransferContract  string
	RejectionReason   RejectionReason
}

type fieldID int

const (
	fieldRecipient fieldID = iota
	fieldCorrelation
	fieldRequestedArtifact
	fieldTransferContract
	fieldRejectionReason
)

var fieldNames = map[fieldID]string{
	fieldRecipient:         "recipient",
	fieldCorrelation:       "correlation id",
	fieldRequestedArtifact: "requested artifact",
	fieldTransferContract:  "transfer contract",
	fieldRejectionReason:   "rejection reason",
}

// requirements lists the fields each kind must carry beyond the common core.
// Unknown kinds are rejected outright.
var requirements = map[Kind][]fieldID{
	KindDescriptionRequest:    {fieldRecipient},
	KindDescriptionResponse:   {fieldRecipient, fieldCorrelation},
	KindContractRequest:       {fieldRecipient},
	KindContractAgreement:     {fieldRecipient},
	KindArtifactRequest:       {fieldRecipient, fieldRequestedArtifact, fieldTransferContract},
	KindArtifactResponse:      {fieldRecipient, fieldCorrelation, fieldTransferContract},
	KindResourceUpdate:        {fieldRecipient},
	KindResourceUnavailable:   {fieldRecipient},
	KindConnectorUpdate:       {fieldRecipient},
	KindConnectorUnavailable:  {fieldRecipient},
	KindProcessedNotification: {fieldRecipient, fieldCorrelation},
	KindRejection:             {fieldRecipient, fieldCorrelation, fieldRejectionReason},
}

// Factory builds structurally valid headers for every protocol kind. It is
// pure: no I/O, no token attachment, no clock beyond the issue timestamp.
type Factory struct {
	issuer      string
	senderAgent string
	now         func() time.Time
}

// NewFactory constructs a factory bound to one connector identity. Both
// identities must be absolute URIs.
func NewFactory(issuer, senderAgent string) (*Factory, error) {
	if err := checkURI(issuer); err != nil {
		return nil, fmt.Errorf("%w: issuer: %v", ErrHeaderBuild, err)
	}
	if err := checkURI(senderAgent); err != nil {
		return nil, fmt.Errorf("%w: sender agent: %v", ErrHeaderBuild, err)
	}
	return &Factory{issuer: issuer, senderAgent: senderAgent, now: time.Now}, nil
}

// Build returns a fully populated header for kind, or ErrHeaderBuild if a
// required field for that kind is missing or any URI field is malformed.
// It never returns a partially populated header.
func (f *Factory) Build(kind Kind, p Params) (Header, error) {
	reqs, ok := requirements[kind]
	if !ok {
		return Header{}, fmt.Errorf("%w: unknown kind %q", ErrHeaderBuild, kind)
	}
	for _, id := range reqs {
		if !p.has(id) {
			return Header{}, fmt.Errorf("%w: kind %s requires %s", ErrHeaderBuild, kind, fieldNames[id])
		}
	}
	for name, v := range map[string]string{
		"recipient":          p.Recipient,
		"requested element":  p.RequestedElement,
		"requested artifact": p.RequestedArtifact,
		"transfer contract":  p.TransferContract,
	} {
		if v == "" {
			continue
		}
		if err := checkURI(v); err != nil {
			return Header{}, fmt.Errorf("%w: %s: %v", ErrHeaderBuild, name, err)
		}
	}

	h := Header{
		ID:            "urn:dexc:message:" + uuid.NewString(),
		Kind:          kind,
		Issued:        f.now().UTC(),
		ModelVersion:  ModelVersion,
		Issuer:        f.issuer,
		SenderAgent:   f.senderAgent,
		Recipient:     p.Recipient,
		CorrelationID: p.CorrelationID,
	}

	switch kind {
	case KindDescriptionRequest:
		// RequestedElement is optional: empty means "describe yourself".
		h.RequestedElement = p.RequestedElement
	case KindArtifactRequest:
		h.RequestedArtifact = p.RequestedArtifact
		h.TransferContract = p.TransferContract
	case KindArtifactResponse:
		h.TransferContract = p.TransferContract
	case KindResourceUpdate, KindResourceUnavailable:
		h.RequestedElement = p.RequestedElement
	case KindRejection:
		h.RejectionReason = p.RejectionReason
	}
	return h, nil
}

func (p Params) has(id fieldID) bool {
	switch id {
	case fieldRecipient:
		return strings.TrimSpace(p.Recipient) != ""
	case fieldCorrelation:
		return strings.TrimSpace(p.CorrelationID) != ""
	case fieldRequestedArtifact:
		return strings.TrimSpace(p.RequestedArtifact) != ""
	case fieldTransferContract:
		return strings.TrimSpace(p.TransferContract) != ""
	case fieldRejectionReason:
		return strings.TrimSpace(string(p.RejectionReason)) != ""
	}
	return false
}

func checkURI(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme == "" {
		return fmt.Errorf("uri %q has no scheme", raw)
	}
	return nil
}
