package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dexcon/dexc/internal/broker"
	"github.com/dexcon/dexc/internal/config"
	"github.com/dexcon/dexc/internal/dispatch"
	"github.com/dexcon/dexc/internal/message"
	"github.com/dexcon/dexc/internal/negotiation"
	"github.com/dexcon/dexc/internal/observability"
	"github.com/dexcon/dexc/internal/policy"
	"github.com/dexcon/dexc/internal/provider"
	"github.com/dexcon/dexc/internal/selfdesc"
	"github.com/dexcon/dexc/internal/server"
	"github.com/dexcon/dexc/internal/store"
	"github.com/dexcon/dexc/internal/token"
)

func main() {
	configPath := flag.String("config", "dexc.toml", "path to connector config")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "dexcd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadConnectorConfig(configPath)
	if err != nil {
		return err
	}
	logger := observability.InitLogger("dexcd", cfg.LogLevel)

	tokens, err := token.NewService([]byte(cfg.TokenSecret), cfg.ID, cfg.TokenAudience, cfg.TokenTTLDuration(), logger)
	if err != nil {
		return err
	}
	factory, err := message.NewFactory(cfg.ID, cfg.ID+"#agent")
	if err != nil {
		return err
	}
	classifier := message.NewClassifier(cfg.InboundVersions, tokens, logger)
	client := dispatch.NewClient(
		dispatch.Config{Timeout: cfg.OutboundTimeoutDuration()},
		tokens, classifier, cfg.ID, logger,
	)

	mem := store.NewMemory()
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}
	self := selfdesc.Connector{ID: cfg.ID, Title: cfg.Title, ModelVersion: message.ModelVersion}

	verifier := policy.NewVerifier(mem, nil, logger)
	orch := negotiation.NewOrchestrator(factory, client, mem, cfg.AutoDownload, logger)
	registry := broker.NewDispatcher(factory, client, catalog, self, logger)
	handler := provider.NewHandler(factory, tokens, tokens, verifier, catalog, mem, self, cfg.InboundVersions, logger)

	conn := server.Appear(cfg.ID, cfg.Title, cfg.Addr, cfg.CorsOrigins, server.Deps{
		Handler:  handler,
		Orch:     orch,
		Registry: registry,
		Catalog:  catalog,
		Brokers:  cfg.Brokers,
	}, logger)
	conn.RegisterRoutes()
	return conn.Run()
}

// loadCatalog materializes the offered resources, pulling artifact bytes
// inline from the config or from the referenced files.
func loadCatalog(cfg config.ConnectorConfig) (*store.Catalog, error) {
	catalog := store.NewCatalog()
	for _, rc := range cfg.Resources {
		res := store.Resource{
			ID:          rc.ID,
			Title:       rc.Title,
			Description: rc.Description,
		}
		for _, ac := range rc.Artifacts {
			data := []byte(ac.Data)
			if ac.Path != "" {
				b, err := os.ReadFile(ac.Path)
				if err != nil {
					return nil, fmt.Errorf("artifact %s: %w", ac.ID, err)
				}
				data = b
			}
			res.Artifacts = append(res.Artifacts, store.Artifact{ID: ac.ID, Title: ac.Title, Data: data})
		}
		if err := catalog.Add(res); err != nil {
			return nil, err
		}
	}
	return catalog, nil
}
