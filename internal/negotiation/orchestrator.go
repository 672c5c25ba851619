// Package negotiation drives the multi-step contract negotiation: contract
// request, agreement acknowledgement, per-resource description fetches, and
// optional artifact downloads, chained into one logical transaction with
// partial-failure handling.
package negotiation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dexcon/dexc/internal/contract"
	"github.com/dexcon/dexc/internal/dispatch"
	"github.com/dexcon/dexc/internal/message"
	"github.com/dexcon/dexc/internal/selfdesc"
	"github.com/dexcon/dexc/internal/store"
)

// Status summarizes one finished negotiation for the caller. The three
// values are deliberately distinct: partial success is not success.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusPartial   Status = "partial"
	StatusFailed    Status = "failed"
)

// Outcome is the per-negotiation summary. Failure is set for hard wire
// failures, Err for collaborator faults (persistence); skipped items are
// recorded, never thrown.
type Outcome struct {
	Status           Status
	State            State
	AgreementID      string
	LinkedArtifacts  []string
	SkippedResources []string
	SkippedArtifacts []string
	Failure          *dispatch.Failure
	Err              error
}

// Params starts one negotiation: the counterparty, the consumer-authored
// contract request, the element URIs to describe after agreement, and the
// download policy.
type Params struct {
	Recipient string
	Request   contract.Request
	Resources []string
	Policy    DownloadPolicy
}

// Orchestrator sequences the negotiation stages. Stateless between
// negotiations; each call owns its own Context, so independent
// negotiations may run concurrently on one Orchestrator.
type Orchestrator struct {
	factory      *message.Factory
	client       *dispatch.Client
	store        store.Store
	autoDownload bool
	log          zerolog.Logger
}

func NewOrchestrator(factory *message.Factory, client *dispatch.Client, st store.Store, autoDownload bool, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		factory:      factory,
		client:       client,
		store:        st,
		autoDownload: autoDownload,
		log:          log.With().Str("component", "negotiation").Logger(),
	}
}

// Negotiate runs the whole state machine. It always terminates: resource
// and artifact failures are skipped and reported, only contract-stage
// failures and collaborator faults end in StatusFailed.
func (o *Orchestrator) Negotiate(ctx context.Context, p Params) Outcome {
	nctx := &Context{
		Recipient:        p.Recipient,
		State:            StateStart,
		PendingResources: append([]string(nil), p.Resources...),
		Policy:           p.Policy,
	}
	log := o.log.With().Str("recipient", p.Recipient).Logger()

	if err := p.Request.Validate(); err != nil {
		return o.failLocal(nctx, err)
	}

	agreement, f := o.requestContract(ctx, nctx, p.Request)
	if f != nil {
		return o.fail(nctx, f)
	}

	if f := o.acknowledgeAgreement(ctx, nctx, agreement); f != nil {
		return o.fail(nctx, f)
	}

	agreementID, err := o.store.SaveAgreement(ctx, agreement)
	if err != nil {
		return o.failErr(nctx, fmt.Errorf("persist agreement: %w", err))
	}
	nctx.AgreementID = agreementID
	log.Info().Str("agreement", agreementID).Msg("agreement persisted")

	skippedResources := o.fetchDescriptions(ctx, nctx)

	if err := o.store.LinkArtifacts(ctx, nctx.AgreementID, nctx.Artifacts); err != nil {
		return o.failErr(nctx, fmt.Errorf("link artifacts: %w", err))
	}

	var skippedArtifacts []string
	if o.shouldDownload(nctx.Policy) {
		skippedArtifacts = o.fetchArtifacts(ctx, nctx)
	}

	if err := nctx.advance(StateDone); err != nil {
		return o.failErr(nctx, err)
	}

	status := StatusSucceeded
	if len(skippedResources) > 0 || len(skippedArtifacts) > 0 {
		status = StatusPartial
	}
	log.Info().
		Str("status", string(status)).
		Int("linked", len(nctx.Artifacts)).
		Int("skipped_resources", len(skippedResources)).
		Int("skipped_artifacts", len(skippedArtifacts)).
		Msg("negotiation finished")
	return Outcome{
		Status:           status,
		State:            nctx.State,
		AgreementID:      nctx.AgreementID,
		LinkedArtifacts:  append([]string(nil), nctx.Artifacts...),
		SkippedResources: skippedResources,
		SkippedArtifacts: skippedArtifacts,
	}
}

// requestContract sends the contract request and validates the returned
// agreement against it.
func (o *Orchestrator) requestContract(ctx context.Context, nctx *Context, req contract.Request) (contract.Agreement, *dispatch.Failure) {
	h, err := o.factory.Build(message.KindContractRequest, message.Params{Recipient: nctx.Recipient})
	if err != nil {
		return contract.Agreement{}, &dispatch.Failure{Kind: dispatch.FailHeaderBuild, Err: err}
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return contract.Agreement{}, &dispatch.Failure{Kind: dispatch.FailEncodeDecode, Err: err}
	}
	if err := nctx.advance(StateAwaitingContract); err != nil {
		return contract.Agreement{}, &dispatch.Failure{Kind: dispatch.FailHeaderBuild, Err: err}
	}
	nctx.Correlation = h.ID

	resp, f := o.client.Exchange(ctx, h, payload, nctx.Recipient, message.KindContractAgreement)
	if f != nil {
		return contract.Agreement{}, f
	}

	agreement, err := contract.DecodeAgreement(resp.Envelope.Payload())
	if err != nil {
		return contract.Agreement{}, &dispatch.Failure{Kind: dispatch.FailEncodeDecode, Err: err}
	}
	if !contract.RulesEqual(req.Contract, agreement.Contract) {
		o.log.Warn().Str("agreement", agreement.ID).Msg("agreement rules diverge from request")
		return contract.Agreement{}, &dispatch.Failure{Kind: dispatch.FailContractMismatch}
	}
	return agreement, nil
}

// acknowledgeAgreement returns the countersigned agreement to the provider
// and expects a processed notification.
func (o *Orchestrator) acknowledgeAgreement(ctx context.Context, nctx *Context, ag contract.Agreement) *dispatch.Failure {
	if err := nctx.advance(StateAwaitingAck); err != nil {
		return &dispatch.Failure{Kind: dispatch.FailHeaderBuild, Err: err}
	}
	h, err := o.factory.Build(message.KindContractAgreement, message.Params{
		Recipient:     nctx.Recipient,
		CorrelationID: nctx.Correlation,
	})
	if err != nil {
		return &dispatch.Failure{Kind: dispatch.FailHeaderBuild, Err: err}
	}
	payload, err := json.Marshal(ag)
	if err != nil {
		return &dispatch.Failure{Kind: dispatch.FailEncodeDecode, Err: err}
	}
	nctx.Correlation = h.ID

	_, f := o.client.Exchange(ctx, h, payload, nctx.Recipient, message.KindProcessedNotification)
	return f
}

// fetchDescriptions requests a description per pending resource,
// sequentially so the single correlation id needs no locking. One
// resource's failure skips that resource only; the negotiation continues.
func (o *Orchestrator) fetchDescriptions(ctx context.Context, nctx *Context) []string {
	// Descriptions run even when the pending set is empty so the state
	// machine passes through every stage exactly once.
	if err := nctx.advance(StateAwaitingDescriptions); err != nil {
		o.log.Error().Err(err).Msg("description stage transition")
		return nil
	}

	var skipped []string
	for _, element := range nctx.PendingResources {
		artifacts, err := o.describeResource(ctx, nctx, element)
		if err != nil {
			o.log.Warn().Err(err).Str("element", element).Msg("resource description skipped")
			skipped = append(skipped, element)
			continue
		}
		nctx.Artifacts = append(nctx.Artifacts, artifacts...)
	}
	nctx.PendingResources = nil
	return skipped
}

func (o *Orchestrator) describeResource(ctx context.Context, nctx *Context, element string) ([]string, error) {
	h, err := o.factory.Build(message.KindDescriptionRequest, message.Params{
		Recipient:        nctx.Recipient,
		RequestedElement: element,
	})
	if err != nil {
		return nil, err
	}
	nctx.Correlation = h.ID

	resp, f := o.client.Exchange(ctx, h, nil, nctx.Recipient, message.KindDescriptionResponse)
	if f != nil {
		return nil, f
	}

	doc, err := selfdesc.DecodeResource(resp.Envelope.Payload())
	if err != nil {
		return nil, err
	}
	meta := store.Metadata{
		Element:      element,
		Document:     resp.Envelope.Payload(),
		Artifacts:    doc.Artifacts,
		AutoDownload: o.shouldDownload(nctx.Policy),
		Remote:       nctx.Recipient,
	}
	if err := o.store.SaveMetadata(ctx, meta); err != nil {
		return nil, err
	}
	return doc.Artifacts, nil
}

// fetchArtifacts downloads every linked artifact under the agreement,
// sequentially, with the same skip-and-continue policy as descriptions.
func (o *Orchestrator) fetchArtifacts(ctx context.Context, nctx *Context) []string {
	if err := nctx.advance(StateAwaitingArtifacts); err != nil {
		o.log.Error().Err(err).Msg("artifact stage transition")
		return nil
	}

	var skipped []string
	for _, artifact := range nctx.Artifacts {
		if err := o.downloadArtifact(ctx, nctx, artifact); err != nil {
			o.log.Warn().Err(err).Str("artifact", artifact).Msg("artifact download skipped")
			skipped = append(skipped, artifact)
		}
	}
	return skipped
}

func (o *Orchestrator) downloadArtifact(ctx context.Context, nctx *Context, artifact string) error {
	h, err := o.factory.Build(message.KindArtifactRequest, message.Params{
		Recipient:         nctx.Recipient,
		RequestedArtifact: artifact,
		TransferContract:  nctx.AgreementID,
	})
	if err != nil {
		return err
	}
	nctx.Correlation = h.ID

	resp, f := o.client.Exchange(ctx, h, nil, nctx.Recipient, message.KindArtifactResponse)
	if f != nil {
		// A NOT_AUTHORIZED rejection here means the provider's access gate
		// refused the transfer contract, not a generic peer rejection.
		if f.Kind == dispatch.FailRejectedByPeer && f.Reason == message.ReasonNotAuthorized {
			f.Kind = dispatch.FailAccessDenied
		}
		return f
	}
	return o.store.SaveArtifact(ctx, artifact, resp.Envelope.Payload())
}

func (o *Orchestrator) shouldDownload(p DownloadPolicy) bool {
	switch p {
	case PolicyAlways:
		return true
	case PolicyNever:
		return false
	}
	return o.autoDownload
}

func (o *Orchestrator) fail(nctx *Context, f *dispatch.Failure) Outcome {
	_ = nctx.advance(StateFailed)
	o.log.Warn().Str("recipient", nctx.Recipient).Err(f).Msg("negotiation failed")
	return Outcome{Status: StatusFailed, State: nctx.State, AgreementID: nctx.AgreementID, Failure: f}
}

func (o *Orchestrator) failErr(nctx *Context, err error) Outcome {
	_ = nctx.advance(StateFailed)
	o.log.Error().Str("recipient", nctx.Recipient).Err(err).Msg("negotiation failed")
	return Outcome{Status: StatusFailed, State: nctx.State, AgreementID: nctx.AgreementID, Err: err}
}

// failLocal maps contract validation errors onto the wire taxonomy before
// anything is sent.
func (o *Orchestrator) failLocal(nctx *Context, err error) Outcome {
	kind := dispatch.FailMissingTarget
	if errors.Is(err, contract.ErrEmptyRules) {
		kind = dispatch.FailEmptyRuleList
	}
	return o.fail(nctx, &dispatch.Failure{Kind: kind, Err: err})
}
