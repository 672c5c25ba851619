// Package provider handles inbound protocol messages: description requests,
// contract negotiation, and artifact requests gated by the access verifier.
// Every inbound envelope gets exactly one response envelope, a rejection
// when anything is wrong with it.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/dexcon/dexc/internal/contract"
	"github.com/dexcon/dexc/internal/message"
	"github.com/dexcon/dexc/internal/multipart"
	"github.com/dexcon/dexc/internal/observability"
	"github.com/dexcon/dexc/internal/policy"
	"github.com/dexcon/dexc/internal/selfdesc"
	"github.com/dexcon/dexc/internal/store"
	"github.com/dexcon/dexc/internal/token"
)

// Handler answers one connector's inbound exchange endpoint.
type Handler struct {
	factory    *message.Factory
	tokens     token.Provider
	validator  token.Validator
	verifier   *policy.Verifier
	catalog    *store.Catalog
	agreements store.Agreements
	self       selfdesc.Connector
	inbound    map[string]struct{}
	connector  string
	log        zerolog.Logger
}

func NewHandler(
	factory *message.Factory,
	tokens token.Provider,
	validator token.Validator,
	verifier *policy.Verifier,
	catalog *store.Catalog,
	agreements store.Agreements,
	self selfdesc.Connector,
	versions []string,
	log zerolog.Logger,
) *Handler {
	if len(versions) == 0 {
		versions = message.InboundVersions
	}
	set := make(map[string]struct{}, len(versions))
	for _, v := range versions {
		set[v] = struct{}{}
	}
	return &Handler{
		factory:    factory,
		tokens:     tokens,
		validator:  validator,
		verifier:   verifier,
		catalog:    catalog,
		agreements: agreements,
		self:       self,
		inbound:    set,
		connector:  self.ID,
		log:        log.With().Str("component", "provider").Logger(),
	}
}

// Routes binds the exchange endpoint.
func (h *Handler) Routes(r *gin.Engine) {
	r.POST("/api/exchange", h.handleExchange)
}

func (h *Handler) handleExchange(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusBadRequest, "unreadable body")
		return
	}
	body, boundary, kind := h.exchange(c.Request.Context(), raw)
	if kind != "" {
		c.Set(observability.KeyMessageKind, kind)
	}
	c.Data(http.StatusOK, "multipart/form-data; boundary="+boundary, body)
}

// Handle processes one raw inbound envelope and returns the response
// envelope plus its boundary. It never errors outward: malformed input
// yields a rejection envelope like every other fault.
func (h *Handler) Handle(ctx context.Context, raw []byte) ([]byte, string) {
	body, boundary, _ := h.exchange(ctx, raw)
	return body, boundary
}

// exchange additionally reports the inbound message kind, empty when the
// envelope never yielded a header.
func (h *Handler) exchange(ctx context.Context, raw []byte) ([]byte, string, string) {
	env, err := multipart.Decode(raw)
	if err != nil {
		h.log.Warn().Err(err).Msg("undecodable inbound envelope")
		r := h.rejectResp(ctx, message.Header{}, message.ReasonMalformedMessage, "envelope not decodable")
		return r.body, r.boundary, ""
	}
	inbound, err := message.DecodeHeader(env.Header())
	if err != nil {
		h.log.Warn().Err(err).Msg("undeserializable inbound header")
		r := h.rejectResp(ctx, message.Header{}, message.ReasonMalformedMessage, "header not deserializable")
		return r.body, r.boundary, ""
	}

	r, result := h.route(ctx, inbound, env)
	observability.RecordInbound(h.connector, string(inbound.Kind), result)
	return r.body, r.boundary, string(inbound.Kind)
}

func (h *Handler) route(ctx context.Context, inbound message.Header, env multipart.Envelope) (response, string) {
	log := h.log.With().
		Str("kind", string(inbound.Kind)).
		Str("issuer", inbound.Issuer).
		Str("message_id", inbound.ID).
		Logger()

	if _, ok := h.inbound[inbound.ModelVersion]; !ok {
		log.Warn().Str("model_version", inbound.ModelVersion).Msg("reject: version not supported")
		return h.rejectResp(ctx, inbound, message.ReasonVersionNotSupported, "model version "+inbound.ModelVersion),
			"version_not_supported"
	}
	if err := h.validator.Validate(inbound.SecurityToken); err != nil {
		log.Warn().Err(err).Msg("reject: token invalid")
		return h.rejectResp(ctx, inbound, message.ReasonNotAuthenticated, "security token rejected"),
			"not_authenticated"
	}

	switch inbound.Kind {
	case message.KindDescriptionRequest:
		return h.describe(ctx, inbound, env), "ok"
	case message.KindContractRequest:
		return h.negotiate(ctx, inbound, env), "ok"
	case message.KindContractAgreement:
		return h.confirmAgreement(ctx, inbound, env), "ok"
	case message.KindArtifactRequest:
		return h.releaseArtifact(ctx, inbound), "ok"
	case message.KindConnectorUpdate, message.KindConnectorUnavailable,
		message.KindResourceUpdate, message.KindResourceUnavailable:
		log.Info().Str("element", inbound.RequestedElement).Msg("registration notice processed")
		return h.notifyProcessed(ctx, inbound), "ok"
	}

	log.Warn().Msg("reject: message kind not supported")
	return h.rejectResp(ctx, inbound, message.ReasonTypeNotSupported, string(inbound.Kind)),
		"type_not_supported"
}

type response struct {
	body     []byte
	boundary string
}

// describe answers a description request: the connector self-description
// when no element is named, otherwise the named resource.
func (h *Handler) describe(ctx context.Context, inbound message.Header, _ multipart.Envelope) response {
	if inbound.RequestedElement == "" {
		doc := h.self
		doc.Resources = nil
		for _, res := range h.catalog.List() {
			doc.Resources = append(doc.Resources, resourceDoc(res))
		}
		payload, err := doc.Encode()
		if err != nil {
			return h.rejectResp(ctx, inbound, message.ReasonInternalRecipientError, "self-description failed")
		}
		return h.respond(ctx, inbound, message.KindDescriptionResponse, message.Params{}, payload)
	}

	res, ok := h.catalog.Resource(inbound.RequestedElement)
	if !ok {
		return h.rejectResp(ctx, inbound, message.ReasonNotFound, inbound.RequestedElement)
	}
	payload, err := resourceDoc(res).Encode()
	if err != nil {
		return h.rejectResp(ctx, inbound, message.ReasonInternalRecipientError, "resource description failed")
	}
	return h.respond(ctx, inbound, message.KindDescriptionResponse, message.Params{}, payload)
}

// negotiate countersigns an acceptable contract request. The agreement is
// persisted immediately so a later artifact request can reference it.
func (h *Handler) negotiate(ctx context.Context, inbound message.Header, env multipart.Envelope) response {
	req, err := contract.DecodeRequest(env.Payload())
	if err != nil {
		return h.rejectResp(ctx, inbound, message.ReasonBadParameters, "contract request not readable")
	}
	if err := req.Validate(); err != nil {
		return h.rejectResp(ctx, inbound, message.ReasonBadParameters, err.Error())
	}
	for _, target := range req.Targets() {
		if _, ok := h.catalog.OwnerOf(target); !ok {
			return h.rejectResp(ctx, inbound, message.ReasonNotFound, "no offer for "+target)
		}
	}
	ag, err := contract.Countersign(req, h.self.ID, time.Now())
	if err != nil {
		return h.rejectResp(ctx, inbound, message.ReasonBadParameters, err.Error())
	}
	if _, err := h.agreements.SaveAgreement(ctx, ag); err != nil {
		return h.rejectResp(ctx, inbound, message.ReasonInternalRecipientError, "agreement not persisted")
	}
	payload, err := jsonEncode(ag)
	if err != nil {
		return h.rejectResp(ctx, inbound, message.ReasonInternalRecipientError, "agreement not encodable")
	}
	h.log.Info().Str("agreement", ag.ID).Str("consumer", ag.Consumer).Msg("contract countersigned")
	return h.respond(ctx, inbound, message.KindContractAgreement, message.Params{}, payload)
}

// confirmAgreement acknowledges the consumer's returned agreement after
// checking it matches what was countersigned.
func (h *Handler) confirmAgreement(ctx context.Context, inbound message.Header, env multipart.Envelope) response {
	ag, err := contract.DecodeAgreement(env.Payload())
	if err != nil {
		return h.rejectResp(ctx, inbound, message.ReasonBadParameters, "agreement not readable")
	}
	stored, err := h.agreements.ResolveAgreement(ctx, ag.ID)
	if err != nil {
		return h.rejectResp(ctx, inbound, message.ReasonNotFound, ag.ID)
	}
	if !contract.RulesEqual(stored.Contract, ag.Contract) {
		return h.rejectResp(ctx, inbound, message.ReasonBadParameters, "agreement diverges from countersigned form")
	}
	return h.notifyProcessed(ctx, inbound)
}

// releaseArtifact runs the access gate and hands out artifact bytes only
// on an allowed verdict.
func (h *Handler) releaseArtifact(ctx context.Context, inbound message.Header) response {
	decision, err := h.verifier.Verify(ctx, inbound.RequestedArtifact, inbound.Issuer, inbound.TransferContract)
	if err != nil {
		h.log.Warn().Err(err).Str("contract", inbound.TransferContract).Msg("agreement resolution failed")
		return h.rejectResp(ctx, inbound, message.ReasonNotFound, "transfer contract not resolvable")
	}
	if decision != policy.Allowed {
		h.log.Info().
			Str("artifact", inbound.RequestedArtifact).
			Str("issuer", inbound.Issuer).
			Msg("artifact request denied")
		return h.rejectResp(ctx, inbound, message.ReasonNotAuthorized, "access denied")
	}
	data, ok := h.catalog.ArtifactData(inbound.RequestedArtifact)
	if !ok {
		return h.rejectResp(ctx, inbound, message.ReasonNotFound, inbound.RequestedArtifact)
	}
	return h.respond(ctx, inbound, message.KindArtifactResponse, message.Params{
		TransferContract: inbound.TransferContract,
	}, data)
}

func (h *Handler) notifyProcessed(ctx context.Context, inbound message.Header) response {
	return h.respond(ctx, inbound, message.KindProcessedNotification, message.Params{}, nil)
}

func (h *Handler) rejectResp(ctx context.Context, inbound message.Header, reason message.RejectionReason, detail string) response {
	p := message.Params{RejectionReason: reason}
	return h.respond(ctx, inbound, message.KindRejection, p, []byte(detail))
}

// respond builds, tokens, and encodes one response envelope. Responses go
// back to the inbound issuer and correlate to the inbound message id; a
// missing issuer (undecodable inbound) falls back to the local identity so
// a rejection can still be serialized.
func (h *Handler) respond(ctx context.Context, inbound message.Header, kind message.Kind, p message.Params, payload []byte) response {
	p.Recipient = inbound.Issuer
	if p.Recipient == "" {
		p.Recipient = h.self.ID
	}
	p.CorrelationID = inbound.ID
	if p.CorrelationID == "" {
		p.CorrelationID = "urn:dexc:message:unknown"
	}

	head, err := h.factory.Build(kind, p)
	if err != nil {
		h.log.Error().Err(err).Str("kind", string(kind)).Msg("response header build failed")
		return response{body: nil, boundary: "dexc-error"}
	}
	if tok, err := h.tokens.Current(ctx); err == nil {
		head.SecurityToken = tok
	} else {
		h.log.Error().Err(err).Msg("response token mint failed")
	}

	headerBytes, err := head.Encode()
	if err != nil {
		h.log.Error().Err(err).Msg("response header encode failed")
		return response{body: nil, boundary: "dexc-error"}
	}
	body, boundary, err := multipart.Encode(headerBytes, payload)
	if err != nil {
		h.log.Error().Err(err).Msg("response envelope encode failed")
		return response{body: nil, boundary: "dexc-error"}
	}
	return response{body: body, boundary: boundary}
}

func resourceDoc(res store.Resource) selfdesc.Resource {
	doc := selfdesc.Resource{
		ID:          res.ID,
		Title:       res.Title,
		Description: res.Description,
	}
	for _, a := range res.Artifacts {
		doc.Artifacts = append(doc.Artifacts, a.ID)
	}
	return doc
}

func jsonEncode(v any) ([]byte, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("provider: encode payload: %w", err)
	}
	return b, nil
}
