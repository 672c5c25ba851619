// Package server assembles one connector daemon: the gin engine, the
// provider's exchange endpoint, and the thin admin surface that triggers
// negotiations and broker registrations.
package server

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/dexcon/dexc/internal/broker"
	"github.com/dexcon/dexc/internal/negotiation"
	"github.com/dexcon/dexc/internal/observability"
	"github.com/dexcon/dexc/internal/provider"
	"github.com/dexcon/dexc/internal/store"
)

// Connector is the running daemon state.
type Connector struct {
	ID       string
	Title    string
	Addr     string
	Appeared time.Time

	router   *gin.Engine
	handler  *provider.Handler
	orch     *negotiation.Orchestrator
	registry *broker.Dispatcher
	catalog  *store.Catalog
	brokers  []string
	log      zerolog.Logger
}

// Deps carries the wired components the daemon serves.
type Deps struct {
	Handler  *provider.Handler
	Orch     *negotiation.Orchestrator
	Registry *broker.Dispatcher
	Catalog  *store.Catalog
	Brokers  []string
}

// Appear builds the engine and middleware stack for one connector.
func Appear(id, title, addr string, corsOrigins []string, deps Deps, log zerolog.Logger) *Connector {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log))
	r.Use(observability.RequestMetricsMiddleware(id))
	if len(corsOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: corsOrigins,
			AllowMethods: []string{"GET", "POST", "DELETE"},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	return &Connector{
		ID:       id,
		Title:    title,
		Addr:     addr,
		Appeared: time.Now(),
		router:   r,
		handler:  deps.Handler,
		orch:     deps.Orch,
		registry: deps.Registry,
		catalog:  deps.Catalog,
		brokers:  deps.Brokers,
		log:      log.With().Str("component", "server").Logger(),
	}
}

// HTTPRouter exposes the engine, mainly for httptest in package tests.
func (s *Connector) HTTPRouter() *gin.Engine {
	return s.router
}

// Run serves until the listener fails.
func (s *Connector) Run() error {
	s.log.Info().Str("addr", s.Addr).Msg("connector listening")
	return s.router.Run(s.Addr)
}
