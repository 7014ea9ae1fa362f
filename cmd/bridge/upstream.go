package main

import (
	"fmt"

	"github.com/Grupo-AFAL/smartsuite-bridge/internal/config"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/remote"
)

// newUpstreamFetcher builds the production remote.Fetcher/Mutator from
// resolved configuration. The base URL and API token come from config
// (or the SSBRIDGE_UPSTREAM_* environment variables layered over it);
// neither has a sensible default, so an unconfigured upstream fails
// fast here rather than on the first list/get call.
func newUpstreamFetcher(cfg config.Config) (*remote.HTTPClient, error) {
	if cfg.UpstreamBaseURL == "" {
		return nil, fmt.Errorf("upstream_base_url is not configured (set SSBRIDGE_UPSTREAM_BASE_URL or upstream_base_url in config.toml)")
	}
	if cfg.UpstreamAPIToken == "" {
		return nil, fmt.Errorf("upstream_api_token is not configured (set SSBRIDGE_UPSTREAM_API_TOKEN or upstream_api_token in config.toml)")
	}
	return remote.NewHTTPClient(cfg.UpstreamBaseURL, cfg.UpstreamAPIToken), nil
}
