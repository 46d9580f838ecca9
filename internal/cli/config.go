package cli

import (
	"fmt"
	"os"
	"strings"
)

// ServerConfig is the connection target for remote CLI commands.
type ServerConfig struct {
	BaseURL string
	APIKey  string
}

// ResolveServer builds the connection config for remote commands.
// Precedence: command flags, then GUIDEKIT_SERVER / GUIDEKIT_API_KEY
// environment variables.
func ResolveServer(baseURLFlag, apiKeyFlag string) (ServerConfig, error) {
	cfg := ServerConfig{
		BaseURL: baseURLFlag,
		APIKey:  apiKeyFlag,
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv("GUIDEKIT_SERVER")
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GUIDEKIT_API_KEY")
	}

	if cfg.BaseURL == "" {
		return ServerConfig{}, fmt.Errorf("server URL is required (--server flag or GUIDEKIT_SERVER)")
	}
	if cfg.APIKey == "" {
		return ServerConfig{}, fmt.Errorf("API key is required (--api-key flag or GUIDEKIT_API_KEY)")
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg, nil
}
