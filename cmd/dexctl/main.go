package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
)

func main() {
	configPath := flag.String("config", "dexctl.toml", "path to dexctl config")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: dexctl [-config path] negotiate|register|unregister")
		os.Exit(2)
	}

	cfg, err := loadCtlConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dexctl: %v\n", err)
		os.Exit(1)
	}

	var out []byte
	switch cmd := flag.Arg(0); cmd {
	case "negotiate":
		out, err = negotiate(cfg)
	case "register":
		out, err = call(cfg, http.MethodPost, "/admin/registrations", nil)
	case "unregister":
		out, err = call(cfg, http.MethodDelete, "/admin/registrations", nil)
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "dexctl: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

func negotiate(cfg ctlConfig) ([]byte, error) {
	if cfg.Recipient == "" {
		return nil, fmt.Errorf("negotiate requires a recipient in the config")
	}
	if cfg.ContractPath == "" {
		return nil, fmt.Errorf("negotiate requires a contract file in the config")
	}
	contractDoc, err := os.ReadFile(cfg.ContractPath)
	if err != nil {
		return nil, fmt.Errorf("read contract: %w", err)
	}

	body := map[string]any{
		"recipient": cfg.Recipient,
		"contract":  json.RawMessage(contractDoc),
		"resources": cfg.Resources,
		"policy":    cfg.Policy,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return call(cfg, http.MethodPost, "/admin/negotiations", payload)
}

func call(cfg ctlConfig, method, path string, payload []byte) ([]byte, error) {
	client := &http.Client{Timeout: cfg.Timeout}
	req, err := http.NewRequest(method, cfg.Daemon+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusBadGateway {
		return nil, fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, string(out))
	}
	return out, nil
}
