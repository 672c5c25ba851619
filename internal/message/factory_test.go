package message

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const (
	testIssuer = "https://consumer.example.org/connector"
	testAgent  = "https://consumer.example.org/connector#agent"
)

func newTestFactory(t *testing.T) *Factory {
	t.Helper()
	f, err := NewFactory(testIssuer, testAgent)
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}
	f.now = func() time.Time {
		return time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	}
	return f
}

func TestNewFactoryRejectsRelativeIdentity(t *testing.T) {
	if _, err := NewFactory("not-a-uri", testAgent); !errors.Is(err, ErrHeaderBuild) {
		t.Fatalf("issuer without scheme: got %v, want ErrHeaderBuild", err)
	}
	if _, err := NewFactory(testIssuer, "agent"); !errors.Is(err, ErrHeaderBuild) {
		t.Fatalf("agent without scheme: got %v, want ErrHeaderBuild", err)
	}
}

func TestBuildStampsCommonCore(t *testing.T) {
	f := newTestFactory(t)
	h, err := f.Build(KindDescriptionRequest, Params{Recipient: "https://provider.example.org"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.HasPrefix(h.ID, "urn:dexc:message:") {
		t.Fatalf("message id %q missing urn prefix", h.ID)
	}
	if h.Kind != KindDescriptionRequest {
		t.Fatalf("kind: %s", h.Kind)
	}
	if h.ModelVersion != ModelVersion {
		t.Fatalf("model version: %s", h.ModelVersion)
	}
	if h.Issuer != testIssuer || h.SenderAgent != testAgent {
		t.Fatalf("identity not stamped: issuer=%q agent=%q", h.Issuer, h.SenderAgent)
	}
	if h.Issued.IsZero() || h.Issued.Location() != time.UTC {
		t.Fatalf("issued timestamp: %v", h.Issued)
	}
	if h.SecurityToken != "" {
		t.Fatalf("factory must not attach tokens, got %q", h.SecurityToken)
	}
}

func TestBuildGeneratesUniqueIDs(t *testing.T) {
	f := newTestFactory(t)
	p := Params{Recipient: "https://provider.example.org"}
	a, _ := f.Build(KindContractRequest, p)
	b, _ := f.Build(KindContractRequest, p)
	if a.ID == b.ID {
		t.Fatalf("consecutive builds reused id %q", a.ID)
	}
}

func TestBuildRequiredFieldsPerKind(t *testing.T) {
	f := newTestFactory(t)
	full := Params{
		Recipient:         "https://provider.example.org",
		CorrelationID:     "urn:dexc:message:prior",
		RequestedElement:  "https://provider.example.org/resources/1",
		RequestedArtifact: "https://provider.example.org/artifacts/1",
		TransferContract:  "urn:dexc:agreement:1",
		RejectionReason:   ReasonNotFound,
	}

	cases := []struct {
		kind Kind
		drop func(Params) Params
		want string
	}{
		{KindDescriptionRequest, func(p Params) Params { p.Recipient = ""; return p }, "recipient"},
		{KindArtifactRequest, func(p Params) Params { p.RequestedArtifact = ""; return p }, "requested artifact"},
		{KindArtifactRequest, func(p Params) Params { p.TransferContract = ""; return p }, "transfer contract"},
		{KindArtifactResponse, func(p Params) Params { p.CorrelationID = ""; return p }, "correlation id"},
		{KindProcessedNotification, func(p Params) Params { p.CorrelationID = ""; return p }, "correlation id"},
		{KindRejection, func(p Params) Params { p.RejectionReason = ""; return p }, "rejection reason"},
	}
	for _, tc := range cases {
		if _, err := f.Build(tc.kind, full); err != nil {
			t.Fatalf("%s with full params: %v", tc.kind, err)
		}
		_, err := f.Build(tc.kind, tc.drop(full))
		if !errors.Is(err, ErrHeaderBuild) {
			t.Fatalf("%s missing %s: got %v, want ErrHeaderBuild", tc.kind, tc.want, err)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s error %q does not name %s", tc.kind, err, tc.want)
		}
	}
}

func TestBuildRejectsUnknownKind(t *testing.T) {
	f := newTestFactory(t)
	_, err := f.Build(Kind("dexc:NoSuchThing"), Params{Recipient: "https://provider.example.org"})
	if !errors.Is(err, ErrHeaderBuild) {
		t.Fatalf("unknown kind: got %v, want ErrHeaderBuild", err)
	}
}

func TestBuildRejectsMalformedURIField(t *testing.T) {
	f := newTestFactory(t)
	_, err := f.Build(KindArtifactRequest, Params{
		Recipient:         "https://provider.example.org",
		RequestedArtifact: "artifacts/1",
		TransferContract:  "urn:dexc:agreement:1",
	})
	if !errors.Is(err, ErrHeaderBuild) {
		t.Fatalf("schemeless artifact ref: got %v, want ErrHeaderBuild", err)
	}
}

func TestBuildCopiesOnlyKindRelevantFields(t *testing.T) {
	f := newTestFactory(t)
	h, err := f.Build(KindContractRequest, Params{
		Recipient:         "https://provider.example.org",
		RequestedElement:  "https://provider.example.org/resources/1",
		RequestedArtifact: "https://provider.example.org/artifacts/1",
		TransferContract:  "urn:dexc:agreement:1",
		RejectionReason:   ReasonNotFound,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if h.RequestedElement != "" || h.RequestedArtifact != "" || h.TransferContract != "" || h.RejectionReason != "" {
		t.Fatalf("contract request carried foreign fields: %+v", h)
	}
}

func TestDescriptionRequestElementIsOptional(t *testing.T) {
	f := newTestFactory(t)
	h, err := f.Build(KindDescriptionRequest, Params{Recipient: "https://provider.example.org"})
	if err != nil {
		t.Fatalf("self-description request: %v", err)
	}
	if h.RequestedElement != "" {
		t.Fatalf("requested element: %q", h.RequestedElement)
	}

	h, err = f.Build(KindDescriptionRequest, Params{
		Recipient:        "https://provider.example.org",
		RequestedElement: "https://provider.example.org/resources/1",
	})
	if err != nil {
		t.Fatalf("element description request: %v", err)
	}
	if h.RequestedElement != "https://provider.example.org/resources/1" {
		t.Fatalf("requested element not carried: %q", h.RequestedElement)
	}
}

func TestHeaderEncodeDecodeRoundTrip(t *testing.T) {
	f := newTestFactory(t)
	h, err := f.Build(KindArtifactRequest, Params{
		Recipient:         "https://provider.example.org",
		RequestedArtifact: "https://provider.example.org/artifacts/1",
		TransferContract:  "urn:dexc:agreement:1",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	raw, err := h.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := DecodeHeader(raw)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if !got.Issued.Equal(h.Issued) {
		t.Fatalf("issued: got %v want %v", got.Issued, h.Issued)
	}
	got.Issued = h.Issued
	if got != h {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, h)
	}
}

func TestDecodeHeaderChecksCommonCore(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"garbage", `{{{`},
		{"missing id", `{"kind":"dexc:RejectionMessage","issuerConnector":"https://p.example.org"}`},
		{"missing kind", `{"id":"urn:dexc:message:1","issuerConnector":"https://p.example.org"}`},
		{"missing issuer", `{"id":"urn:dexc:message:1","kind":"dexc:RejectionMessage"}`},
	}
	for _, tc := range cases {
		_, err := DecodeHeader([]byte(tc.raw))
		if err == nil {
			t.Fatalf("%s: decode succeeded", tc.name)
		}
		if tc.name != "garbage" && !errors.Is(err, ErrHeaderIncomplete) {
			t.Fatalf("%s: got %v, want ErrHeaderIncomplete", tc.name, err)
		}
	}
}

func TestDecodeHeaderAcceptsSparseRejection(t *testing.T) {
	raw := `{"id":"urn:dexc:message:9","kind":"dexc:RejectionMessage","issuerConnector":"https://p.example.org","rejectionReason":"NOT_FOUND"}`
	h, err := DecodeHeader([]byte(raw))
	if err != nil {
		t.Fatalf("sparse rejection: %v", err)
	}
	if h.RejectionReason != ReasonNotFound {
		t.Fatalf("reason: %q", h.RejectionReason)
	}
}
