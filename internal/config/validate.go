package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/mattn/go-shellwords"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	switch cfg.Engine.Backend {
	case "exec":
		if strings.TrimSpace(cfg.Engine.Command) == "" {
			return nil, fmt.Errorf("engine.command must not be empty when engine.backend=exec")
		}
	case "websocket":
		endpoint := strings.TrimSpace(cfg.Engine.Endpoint)
		if endpoint == "" {
			return nil, fmt.Errorf("engine.endpoint must not be empty when engine.backend=websocket")
		}
		parsed, err := url.Parse(endpoint)
		if err != nil || (parsed.Scheme != "ws" && parsed.Scheme != "wss") {
			return nil, fmt.Errorf("engine.endpoint must be a ws:// or wss:// URL")
		}
		if strings.TrimSpace(cfg.Engine.HealthGRPC) == "" {
			warnings = append(warnings, Warning{Message: "engine.health_grpc is unset; the websocket engine is assumed available"})
		}
	default:
		return nil, fmt.Errorf("engine.backend must be one of: exec, websocket")
	}
	if cfg.Engine.DialTimeoutMS < 0 {
		return nil, fmt.Errorf("engine.dial_timeout_ms must be >= 0")
	}

	if cfg.Session.MaxResults <= 0 {
		return nil, fmt.Errorf("session.max_results must be > 0")
	}
	if cfg.Session.SilenceTimeoutMS < 0 {
		return nil, fmt.Errorf("session.silence_timeout_ms must be >= 0")
	}

	if command := strings.TrimSpace(cfg.Popup.Command); command != "" {
		if _, err := shellwords.Parse(command); err != nil {
			return nil, fmt.Errorf("popup.command: %w", err)
		}
	}
	if cfg.Popup.TimeoutMS < 0 {
		return nil, fmt.Errorf("popup.timeout_ms must be >= 0")
	}

	if cfg.History.RetentionDays < 0 {
		return nil, fmt.Errorf("history.retention_days must be >= 0")
	}
	if cfg.History.Enable && cfg.History.RetentionDays == 0 {
		warnings = append(warnings, Warning{Message: "history.retention_days is 0; history is kept forever"})
	}

	if cfg.Bus.Enable {
		if len(cfg.Bus.Servers) == 0 {
			return nil, fmt.Errorf("bus.servers must not be empty when bus.enable=true")
		}
		if cfg.Bus.ConnectTimeoutMS < 0 {
			return nil, fmt.Errorf("bus.connect_timeout_ms must be >= 0")
		}
	}
	prefix := cfg.Bus.SubjectPrefix
	if prefix == "" || strings.ContainsAny(prefix, " \t*>") || strings.HasPrefix(prefix, ".") || strings.HasSuffix(prefix, ".") {
		return nil, fmt.Errorf("bus.subject_prefix %q is not a valid NATS subject prefix", prefix)
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	if cfg.Availability.RequireInput && strings.TrimSpace(cfg.Availability.Input) == "" {
		warnings = append(warnings, Warning{Message: "availability.input is empty; using the default source"})
	}

	return warnings, nil
}
