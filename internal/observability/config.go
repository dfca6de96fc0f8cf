package observability

import (
	"strings"

	"github.com/pawtraits-dev/pawtraits-sub014/internal/config"
)

// Config is the slice of application config the logger, tracer and meter need.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "pawtraits"
	}

	ratio := cfg.OtelSamplingRatio
	switch {
	case ratio < 0:
		ratio = 0
	case ratio > 1:
		ratio = 1
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.ToLower(strings.TrimSpace(cfg.Environment)),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             orDefault(cfg.LogLevel, "info"),
		LogFormat:            orDefault(cfg.LogFormat, "json"),
		OtelEnabled:          cfg.OtelEnabled,
		OtelExporterEndpoint: strings.TrimSpace(cfg.OTLPEndpoint),
		OtelExporterProtocol: orDefault(cfg.OTLPProtocol, "grpc"),
		OtelSamplingRatio:    ratio,
	}
}

// Debug reports whether stack traces should be attached to error logs.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch c.Environment {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func orDefault(value, def string) string {
	if v := strings.ToLower(strings.TrimSpace(value)); v != "" {
		return v
	}
	return def
}
