package multipart

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	header := []byte(`{"id":"urn:dexc:message:1","kind":"dexc:DescriptionRequest"}`)
	payload := []byte("some opaque payload")

	body, boundary, err := Encode(header, payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if boundary == "" {
		t.Fatalf("empty boundary")
	}
	if bytes.Contains(header, []byte(boundary)) || bytes.Contains(payload, []byte(boundary)) {
		t.Fatalf("boundary collides with part content")
	}

	env, err := Decode(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(env.Header(), header) {
		t.Fatalf("header mismatch: got %q want %q", env.Header(), header)
	}
	if !bytes.Equal(env.Payload(), payload) {
		t.Fatalf("payload mismatch: got %q want %q", env.Payload(), payload)
	}
	if got := env.Names(); len(got) != 2 || got[0] != PartHeader || got[1] != PartPayload {
		t.Fatalf("part order: %v", got)
	}
}

func TestDecodeToleratesLFOnlyEnvelope(t *testing.T) {
	raw := strings.Join([]string{
		"--b1",
		`Content-Disposition: form-data; name="header"`,
		"",
		`{"id":"m1"}`,
		"--b1",
		`Content-Disposition: form-data; name="payload"`,
		"",
		"data",
		"--b1--",
		"",
	}, "\n")

	env, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode LF envelope: %v", err)
	}
	if string(env.Header()) != `{"id":"m1"}` {
		t.Fatalf("header: %q", env.Header())
	}
	if string(env.Payload()) != "data" {
		t.Fatalf("payload: %q", env.Payload())
	}
}

func TestDecodeLFEnvelopeKeepsCRLFBytesInPayload(t *testing.T) {
	raw := strings.Join([]string{
		"--b1",
		`Content-Disposition: form-data; name="header"`,
		"",
		`{"id":"m1"}`,
		"--b1",
		`Content-Disposition: form-data; name="payload"`,
		"",
		"AB\r\n\r\nCD",
		"--b1--",
		"",
	}, "\n")

	env, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := string(env.Payload()); got != "AB\r\n\r\nCD" {
		t.Fatalf("payload corrupted: want %q got %q", "AB\r\n\r\nCD", got)
	}
}

func TestRoundTripPreservesBinaryPayloadWithCRLFBytes(t *testing.T) {
	header := []byte(`{"id":"m2"}`)
	payload := []byte("binary\r\nwith\rmixed\nends\x00\xff")

	body, _, err := Encode(header, payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	env, err := Decode(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(env.Payload(), payload) {
		t.Fatalf("binary payload corrupted: got %q want %q", env.Payload(), payload)
	}
}

func TestEncodeWithoutPayloadOmitsPayloadPart(t *testing.T) {
	body, _, err := Encode([]byte(`{"id":"m3"}`), nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	env, err := Decode(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := env.Part(PartPayload); ok {
		t.Fatalf("payload part present for empty payload")
	}
}

func TestDecodeEmptyInput(t *testing.T) {
	_, err := Decode(nil)
	if !errors.Is(err, ErrEmptyEnvelope) {
		t.Fatalf("expected ErrEmptyEnvelope, got %v", err)
	}
	_, err = Decode([]byte("  \r\n "))
	if !errors.Is(err, ErrEmptyEnvelope) {
		t.Fatalf("expected ErrEmptyEnvelope for whitespace, got %v", err)
	}
}

func TestDecodeWithoutBoundaryFails(t *testing.T) {
	_, err := Decode([]byte("this is not a multipart stream\n"))
	if !errors.Is(err, ErrNoBoundary) {
		t.Fatalf("expected ErrNoBoundary, got %v", err)
	}
}

func TestDecodeMissingHeaderPartFails(t *testing.T) {
	raw := strings.Join([]string{
		"--b2",
		`Content-Disposition: form-data; name="payload"`,
		"",
		"orphan payload",
		"--b2--",
		"",
	}, "\r\n")

	_, err := Decode([]byte(raw))
	if !errors.Is(err, ErrNoHeaderPart) {
		t.Fatalf("expected ErrNoHeaderPart, got %v", err)
	}
}

func TestDecodePartWithoutDispositionFails(t *testing.T) {
	raw := strings.Join([]string{
		"--b3",
		"Content-Length: 4",
		"",
		"body",
		"--b3--",
		"",
	}, "\r\n")

	_, err := Decode([]byte(raw))
	if !errors.Is(err, ErrBadPartHeaders) {
		t.Fatalf("expected ErrBadPartHeaders, got %v", err)
	}
}

func TestDecodePartWithoutSeparatorFails(t *testing.T) {
	raw := "--b4\r\nContent-Disposition: form-data; name=\"header\"\r\n--b4--\r\n"
	_, err := Decode([]byte(raw))
	if !errors.Is(err, ErrBadPartHeaders) {
		t.Fatalf("expected ErrBadPartHeaders, got %v", err)
	}
}

func TestEncodeRequiresHeader(t *testing.T) {
	_, _, err := Encode(nil, []byte("payload"))
	if !errors.Is(err, ErrNoHeaderPart) {
		t.Fatalf("expected ErrNoHeaderPart, got %v", err)
	}
}
