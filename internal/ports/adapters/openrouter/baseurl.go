package openrouter

import (
	"strings"

	"github.com/forPelevin/promptcut/internal/urlpolicy"
)

const defaultBaseURL = "https://openrouter.ai"

var defaultHosts = []string{"openrouter.ai", "api.openrouter.ai"}

func normalizeBaseURL(baseURL string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return strings.TrimRight(baseURL, "/")
}

// BaseURLPolicy only lets the plan request leave over https to an allowed
// host, since it carries the API key.
func BaseURLPolicy(allowedHosts []string) urlpolicy.Policy {
	return urlpolicy.Policy{
		Name:      "OPENROUTER_BASE_URL",
		Schemes:   []string{"https"},
		Hosts:     urlpolicy.Hosts(allowedHosts, defaultHosts...),
		HostsFrom: "OPENROUTER_ALLOWED_HOSTS",
		Bare:      true,
	}
}

// ValidateBaseURL checks the planner endpoint; empty means the default.
func ValidateBaseURL(baseURL string, allowedHosts []string) error {
	_, err := BaseURLPolicy(allowedHosts).Check(normalizeBaseURL(baseURL))
	return err
}
