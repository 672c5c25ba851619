package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ModelVersion is the protocol model version stamped on outbound headers.
const ModelVersion = "4.2.7"

// InboundVersions is the default set of model versions accepted on inbound
// headers. Kept separate from ModelVersion so a connector can accept older
// peers while always speaking the current version itself.
var InboundVersions = []string{"4.2.0", "4.2.7"}

var (
	ErrHeaderBuild      = errors.New("message: header build failed")
	ErrHeaderDecode     = errors.New("message: header not deserializable")
	ErrHeaderIncomplete = errors.New("message: header missing required field")
)

// Header is the typed protocol message header. Immutable once built; the
// dispatch client sets SecurityToken on an owned copy before encoding.
type Header struct {
	ID                string          `json:"id"`
	Kind              Kind            `json:"kind"`
	Issued            time.Time       `json:"issued"`
	ModelVersion      string          `json:"modelVersion"`
	Issuer            string          `json:"issuerConnector"`
	SenderAgent       string          `json:"senderAgent"`
	SecurityToken     string          `json:"securityToken,omitempty"`
	Recipient         string          `json:"recipientConnector"`
	CorrelationID     string          `json:"correlationMessage,omitempty"`
	RequestedElement  string          `json:"requestedElement,omitempty"`
	RequestedArtifact string          `json:"requestedArtifact,omitempty"`
	TransferContract  string          `json:"transferContract,omitempty"`
	RejectionReason   RejectionReason `json:"rejectionReason,omitempty"`
}

// Encode serializes the header to its wire form.
func (h Header) Encode() ([]byte, error) {
	b, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHeaderBuild, err)
	}
	return b, nil
}

// DecodeHeader parses the wire form of a header and checks the fields every
// kind carries. Kind-specific field presence is the factory's concern on the
// outbound side; inbound headers are checked only for the common core so a
// peer's rejection with sparse fields still classifies.
func DecodeHeader(raw []byte) (Header, error) {
	var h Header
	if err := json.Unmarshal(raw, &h); err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrHeaderDecode, err)
	}
	if strings.TrimSpace(h.ID) == "" {
		return Header{}, fmt.Errorf("%w: id", ErrHeaderIncomplete)
	}
	if strings.TrimSpace(string(h.Kind)) == "" {
		return Header{}, fmt.Errorf("%w: kind", ErrHeaderIncomplete)
	}
	if strings.TrimSpace(h.Issuer) == "" {
		return Header{}, fmt.Errorf("%w: issuerConnector", ErrHeaderIncomplete)
	}
	return h, nil
}
