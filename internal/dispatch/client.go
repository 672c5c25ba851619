// Package dispatch owns outbound transport: it attaches the current
// security token, sends the envelope, enforces a bounded timeout, and runs
// the response through the codec and classifier. Retry policy lives with
// the caller.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dexcon/dexc/internal/message"
	"github.com/dexcon/dexc/internal/multipart"
	"github.com/dexcon/dexc/internal/observability"
	"github.com/dexcon/dexc/internal/token"
)

const defaultTimeout = 15 * time.Second

// Response is one successful exchange: the decoded envelope plus the
// classifier's verdict on it.
type Response struct {
	Envelope multipart.Envelope
	Result   message.Result
}

// Client sends protocol messages to peers. Safe for concurrent use; each
// negotiation issues one outstanding request at a time, but independent
// negotiations may share the client.
type Client struct {
	http       *http.Client
	tokens     token.Provider
	classifier *message.Classifier
	connector  string
	log        zerolog.Logger
}

// Config bounds the client's transport behavior. Transport is optional and
// exists so callers can pin TLS material for the authenticated channel.
type Config struct {
	Timeout   time.Duration
	Transport http.RoundTripper
}

func DefaultConfig() Config {
	return Config{Timeout: defaultTimeout}
}

func NewClient(cfg Config, tokens token.Provider, classifier *message.Classifier, connector string, log zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		http:       &http.Client{Timeout: timeout, Transport: cfg.Transport},
		tokens:     tokens,
		classifier: classifier,
		connector:  connector,
		log:        log.With().Str("component", "dispatch").Logger(),
	}
}

// Exchange sends one (header, payload) pair to recipient and returns the
// classified response. The header is copied before the token is attached;
// the caller's header stays untouched. On any failure the returned Failure
// carries a typed kind; Response is only valid when Failure is nil.
func (c *Client) Exchange(ctx context.Context, h message.Header, payload []byte, recipient string, want message.Kind) (Response, *Failure) {
	start := time.Now()
	resp, f := c.exchange(ctx, h, payload, recipient, want)
	outcome := "ok"
	if f != nil {
		outcome = string(f.Kind)
	}
	observability.RecordDispatch(c.connector, string(h.Kind), outcome, time.Since(start))
	return resp, f
}

func (c *Client) exchange(ctx context.Context, h message.Header, payload []byte, recipient string, want message.Kind) (Response, *Failure) {
	tok, err := c.tokens.Current(ctx)
	if err != nil {
		return Response{}, fail(FailTokenInvalid, err)
	}
	h.SecurityToken = tok

	headerBytes, err := h.Encode()
	if err != nil {
		return Response{}, fail(FailHeaderBuild, err)
	}
	body, boundary, err := multipart.Encode(headerBytes, payload)
	if err != nil {
		return Response{}, fail(FailEncodeDecode, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, recipient, bytes.NewReader(body))
	if err != nil {
		return Response{}, fail(FailTransportIO, err)
	}
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+boundary)

	c.log.Debug().
		Str("kind", string(h.Kind)).
		Str("recipient", recipient).
		Str("message_id", h.ID).
		Msg("sending message")

	httpResp, err := c.http.Do(req)
	if err != nil {
		return Response{}, fail(transportKind(err), err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Response{}, fail(transportKind(err), err)
	}
	if len(raw) == 0 {
		return Response{}, fail(FailEmptyMessage, message.ErrEmptyMessage)
	}

	env, err := multipart.Decode(raw)
	if err != nil {
		if errors.Is(err, multipart.ErrEmptyEnvelope) {
			return Response{}, fail(FailEmptyMessage, err)
		}
		return Response{}, fail(FailEncodeDecode, err)
	}

	result, err := c.classifier.Classify(env, want)
	if err != nil {
		return Response{}, fail(classifyKind(err), err)
	}
	switch result.Class {
	case message.ClassRejected:
		return Response{}, &Failure{
			Kind:   FailRejectedByPeer,
			Reason: result.Reason,
			Detail: result.Detail,
		}
	case message.ClassUnexpected:
		return Response{}, &Failure{
			Kind:   FailUnexpectedResponse,
			Detail: string(result.Header.Kind),
		}
	}
	return Response{Envelope: env, Result: result}, nil
}

// transportKind separates a bounded-timeout expiry from every other
// transport fault; only the former suggests a slow (not broken) peer.
func transportKind(err error) FailureKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return FailTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailTimeout
	}
	return FailTransportIO
}

func classifyKind(err error) FailureKind {
	switch {
	case errors.Is(err, message.ErrEmptyMessage):
		return FailEmptyMessage
	case errors.Is(err, message.ErrUnsupportedVersion):
		return FailUnsupportedVersion
	case errors.Is(err, message.ErrTokenInvalid):
		return FailTokenInvalid
	}
	return FailEncodeDecode
}
