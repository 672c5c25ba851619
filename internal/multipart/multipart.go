// Package multipart implements the wire envelope: a multipart byte stream
// with one part named "header" and, when a payload exists, one named
// "payload". The codec has no notion of direction; requests and responses
// use it identically.
package multipart

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	PartHeader  = "header"
	PartPayload = "payload"
)

var (
	ErrNoBoundary     = errors.New("multipart: boundary not found")
	ErrBadPartHeaders = errors.New("multipart: part missing required headers")
	ErrNoHeaderPart   = errors.New("multipart: envelope has no header part")
	ErrEmptyEnvelope  = errors.New("multipart: empty envelope")
)

// Part is one named section of an envelope.
type Part struct {
	Name string
	Body []byte
}

// Envelope is the ordered set of decoded parts. Every envelope used for
// validation carries a parseable header part; Decode enforces presence.
type Envelope struct {
	parts []Part
}

// Part returns the body of the named part.
func (e Envelope) Part(name string) ([]byte, bool) {
	for _, p := range e.parts {
		if p.Name == name {
			return p.Body, true
		}
	}
	return nil, false
}

// Header returns the header part body.
func (e Envelope) Header() []byte {
	b, _ := e.Part(PartHeader)
	return b
}

// Payload returns the payload part body, nil when absent.
func (e Envelope) Payload() []byte {
	b, _ := e.Part(PartPayload)
	return b
}

// Names lists part names in wire order.
func (e Envelope) Names() []string {
	out := make([]string, 0, len(e.parts))
	for _, p := range e.parts {
		out = append(out, p.Name)
	}
	return out
}

// Encode produces the multipart byte stream for one header document and an
// optional payload. The boundary is generated and regenerated until it
// collides with neither part's content, then returned alongside the body for
// the transport's content-type header.
func Encode(header, payload []byte) (body []byte, boundary string, err error) {
	if len(header) == 0 {
		return nil, "", fmt.Errorf("%w: header part required", ErrNoHeaderPart)
	}
	boundary, err = pickBoundary(header, payload)
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	writePart := func(name string, content []byte) {
		buf.WriteString("--" + boundary + "\r\n")
		fmt.Fprintf(&buf, "Content-Disposition: form-data; name=%q\r\n", name)
		buf.WriteString("Content-Length: ")
		fmt.Fprintf(&buf, "%d\r\n", len(content))
		buf.WriteString("\r\n")
		buf.Write(content)
		buf.WriteString("\r\n")
	}
	writePart(PartHeader, header)
	if len(payload) > 0 {
		writePart(PartPayload, payload)
	}
	buf.WriteString("--" + boundary + "--\r\n")
	return buf.Bytes(), boundary, nil
}

// Decode parses a multipart byte stream back into named parts. It tolerates
// CRLF and LF line endings around boundaries and part headers while leaving
// part bodies byte-exact, and fails hard when the boundary cannot be
// located, a part lacks a Content-Disposition name, or the header part is
// absent.
func Decode(raw []byte) (Envelope, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Envelope{}, ErrEmptyEnvelope
	}

	boundary, err := findBoundary(raw)
	if err != nil {
		return Envelope{}, err
	}

	delim := []byte("--" + boundary)
	segments := bytes.Split(raw, delim)
	// segments[0] is the preamble, the last segment follows the closing
	// "--" marker; everything between is one part each.
	if len(segments) < 3 {
		return Envelope{}, ErrNoHeaderPart
	}

	var env Envelope
	for _, seg := range segments[1 : len(segments)-1] {
		if bytes.HasPrefix(seg, []byte("--")) {
			break
		}
		part, err := parsePart(seg)
		if err != nil {
			return Envelope{}, err
		}
		env.parts = append(env.parts, part)
	}

	if _, ok := env.Part(PartHeader); !ok {
		return Envelope{}, ErrNoHeaderPart
	}
	return env, nil
}

// parsePart splits one part into its headers and body. The blank line
// separating them is mandatory, as is a Content-Disposition carrying a name.
// The segment starts just after the boundary line's opening token and ends
// just before the next boundary's leading dashes.
func parsePart(seg []byte) (Part, error) {
	seg = trimLeadingNewline(seg)
	sep, sepLen := blankLine(seg)
	if sep < 0 {
		return Part{}, fmt.Errorf("%w: no header/body separator", ErrBadPartHeaders)
	}
	head := strings.ReplaceAll(string(seg[:sep]), "\r\n", "\n")
	body := trimTrailingNewline(seg[sep+sepLen:])

	name := ""
	for _, line := range strings.Split(head, "\n") {
		if !strings.HasPrefix(strings.ToLower(line), "content-disposition:") {
			continue
		}
		for _, part := range strings.Split(line, ";") {
			part = strings.TrimSpace(part)
			if strings.HasPrefix(part, "name=") {
				name = strings.Trim(strings.TrimPrefix(part, "name="), `"`)
			}
		}
	}
	if name == "" {
		return Part{}, fmt.Errorf("%w: no part name", ErrBadPartHeaders)
	}
	// Copy the body so the envelope does not alias the caller's buffer.
	out := make([]byte, len(body))
	copy(out, body)
	return Part{Name: name, Body: out}, nil
}

// blankLine finds the first empty line separating part headers from the
// body, accepting CRLFCRLF, LFLF, and the mixed forms in between. The
// earliest match across all forms wins, so a body that happens to contain
// a later separator sequence is never split on it.
func blankLine(seg []byte) (idx, length int) {
	idx = -1
	for _, candidate := range []string{"\r\n\r\n", "\n\r\n", "\r\n\n", "\n\n"} {
		if i := bytes.Index(seg, []byte(candidate)); i >= 0 && (idx < 0 || i < idx) {
			idx, length = i, len(candidate)
		}
	}
	return idx, length
}

func trimLeadingNewline(b []byte) []byte {
	if bytes.HasPrefix(b, []byte("\r\n")) {
		return b[2:]
	}
	if bytes.HasPrefix(b, []byte("\n")) {
		return b[1:]
	}
	return b
}

func trimTrailingNewline(b []byte) []byte {
	if bytes.HasSuffix(b, []byte("\r\n")) {
		return b[:len(b)-2]
	}
	if bytes.HasSuffix(b, []byte("\n")) {
		return b[:len(b)-1]
	}
	return b
}

// findBoundary locates the boundary token from the first dashed line.
func findBoundary(raw []byte) (string, error) {
	for _, line := range bytes.Split(raw, []byte("\n")) {
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			continue
		}
		if bytes.HasPrefix(trimmed, []byte("--")) && len(trimmed) > 2 {
			b := string(bytes.TrimSuffix(trimmed[2:], []byte("--")))
			if b == "" {
				return "", ErrNoBoundary
			}
			return b, nil
		}
		return "", ErrNoBoundary
	}
	return "", ErrNoBoundary
}

func pickBoundary(header, payload []byte) (string, error) {
	for i := 0; i < 16; i++ {
		raw := make([]byte, 16)
		if _, err := rand.Read(raw); err != nil {
			return "", fmt.Errorf("multipart: boundary generation: %w", err)
		}
		b := "dexc-" + hex.EncodeToString(raw)
		if !bytes.Contains(header, []byte(b)) && !bytes.Contains(payload, []byte(b)) {
			return b, nil
		}
	}
	return "", errors.New("multipart: could not generate collision-free boundary")
}
