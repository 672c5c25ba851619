// Package broker registers the connector and its offered resources at
// discovery endpoints. Unlike negotiation, registration is fail-fast: a
// half-registered connector is worse than an aborted run, so the first
// failed endpoint or artifact stops the whole batch.
package broker

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/dexcon/dexc/internal/dispatch"
	"github.com/dexcon/dexc/internal/message"
	"github.com/dexcon/dexc/internal/selfdesc"
	"github.com/dexcon/dexc/internal/store"
)

// Assignment maps one offered artifact to one registration endpoint.
// An artifact listed with several endpoints appears once per endpoint.
type Assignment struct {
	Artifact string
	Endpoint string
}

// Dispatcher runs the two-step registration protocol: the connector
// self-description once per endpoint per run, then one resource
// registration per assigned artifact.
type Dispatcher struct {
	factory *message.Factory
	client  *dispatch.Client
	catalog *store.Catalog
	self    selfdesc.Connector
	log     zerolog.Logger
}

func NewDispatcher(factory *message.Factory, client *dispatch.Client, catalog *store.Catalog, self selfdesc.Connector, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		factory: factory,
		client:  client,
		catalog: catalog,
		self:    self,
		log:     log.With().Str("component", "broker").Logger(),
	}
}

// RegisterAll processes assignments in order and returns false at the
// first endpoint or artifact whose registration fails or whose response is
// not a processed notification. The seen-set deduplicating connector
// registrations is scoped to this one invocation.
func (d *Dispatcher) RegisterAll(ctx context.Context, assignments []Assignment) bool {
	seen := make(map[string]struct{})
	for _, a := range assignments {
		if _, ok := seen[a.Endpoint]; !ok {
			if !d.registerConnector(ctx, a.Endpoint) {
				return false
			}
			seen[a.Endpoint] = struct{}{}
		}
		if !d.registerArtifact(ctx, a) {
			return false
		}
	}
	return true
}

// UnregisterAll announces resource and connector unavailability, same
// order and fail-fast policy as RegisterAll.
func (d *Dispatcher) UnregisterAll(ctx context.Context, assignments []Assignment) bool {
	for _, a := range assignments {
		res, ok := d.catalog.OwnerOf(a.Artifact)
		if !ok {
			d.log.Warn().Str("artifact", a.Artifact).Msg("unregister: artifact not in catalog")
			return false
		}
		if !d.notify(ctx, a.Endpoint, message.KindResourceUnavailable, res.ID, nil) {
			return false
		}
	}
	seen := make(map[string]struct{})
	for _, a := range assignments {
		if _, ok := seen[a.Endpoint]; ok {
			continue
		}
		seen[a.Endpoint] = struct{}{}
		if !d.notify(ctx, a.Endpoint, message.KindConnectorUnavailable, "", nil) {
			return false
		}
	}
	return true
}

func (d *Dispatcher) registerConnector(ctx context.Context, endpoint string) bool {
	payload, err := d.self.Encode()
	if err != nil {
		d.log.Error().Err(err).Msg("encode self-description")
		return false
	}
	return d.notify(ctx, endpoint, message.KindConnectorUpdate, "", payload)
}

func (d *Dispatcher) registerArtifact(ctx context.Context, a Assignment) bool {
	res, ok := d.catalog.OwnerOf(a.Artifact)
	if !ok {
		d.log.Warn().Str("artifact", a.Artifact).Msg("register: artifact not in catalog")
		return false
	}
	doc := selfdesc.Resource{
		ID:          res.ID,
		Title:       res.Title,
		Description: res.Description,
	}
	for _, art := range res.Artifacts {
		doc.Artifacts = append(doc.Artifacts, art.ID)
	}
	payload, err := doc.Encode()
	if err != nil {
		d.log.Error().Err(err).Str("resource", res.ID).Msg("encode resource description")
		return false
	}
	return d.notify(ctx, a.Endpoint, message.KindResourceUpdate, res.ID, payload)
}

// notify sends one registration message and validates the response is a
// processed notification. The success-kind check is the authoritative
// contract; anything else, rejection included, fails the run.
func (d *Dispatcher) notify(ctx context.Context, endpoint string, kind message.Kind, element string, payload []byte) bool {
	h, err := d.factory.Build(kind, message.Params{
		Recipient:        endpoint,
		RequestedElement: element,
	})
	if err != nil {
		d.log.Error().Err(err).Str("kind", string(kind)).Msg("build registration header")
		return false
	}
	_, f := d.client.Exchange(ctx, h, payload, endpoint, message.KindProcessedNotification)
	if f != nil {
		d.log.Warn().
			Err(f).
			Str("endpoint", endpoint).
			Str("kind", string(kind)).
			Msg("registration exchange failed")
		return false
	}
	d.log.Info().Str("endpoint", endpoint).Str("kind", string(kind)).Str("element", element).Msg("registered")
	return true
}
