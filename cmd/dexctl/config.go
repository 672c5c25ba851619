package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type ctlConfig struct {
	Daemon       string
	Recipient    string
	Policy       string
	Resources    []string
	ContractPath string
	Timeout      time.Duration
}

type fileConfig struct {
	Daemon    string   `toml:"daemon"`
	Recipient string   `toml:"recipient"`
	Policy    string   `toml:"policy"`
	Resources []string `toml:"resources"`
	Contract  string   `toml:"contract"`
	Timeout   string   `toml:"timeout"`
}

func defaultCtlConfig() ctlConfig {
	return ctlConfig{
		Daemon:  "http://127.0.0.1:8280",
		Timeout: 60 * time.Second,
	}
}

func loadCtlConfig(path string) (ctlConfig, error) {
	cfg := defaultCtlConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ctlConfig{}, fmt.Errorf("load dexctl config: %w", err)
	}

	if meta.IsDefined("daemon") {
		d := strings.TrimSpace(raw.Daemon)
		if d != "" {
			cfg.Daemon = strings.TrimSuffix(d, "/")
		}
	}
	if meta.IsDefined("recipient") {
		cfg.Recipient = strings.TrimSpace(raw.Recipient)
	}
	if meta.IsDefined("policy") {
		cfg.Policy = strings.TrimSpace(raw.Policy)
	}
	if meta.IsDefined("resources") {
		cfg.Resources = normalizeList(raw.Resources)
	}
	if meta.IsDefined("contract") {
		cfg.ContractPath = strings.TrimSpace(raw.Contract)
	}
	if meta.IsDefined("timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Timeout))
		if err != nil {
			return ctlConfig{}, fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}
	return cfg, nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
