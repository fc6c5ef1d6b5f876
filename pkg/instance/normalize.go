package instance

import (
	"fmt"
	"net/url"
	"strings"
)

// cloudDashboardHost is the browser-facing cloud host users tend to paste;
// API calls go to the api subdomain instead.
const (
	cloudDashboardHost = "cloud.umami.is"
	cloudAPIHost       = "https://api.umami.is"
)

// NormalizeHost turns user input into the canonical base URL for an
// instance: absolute https URL, no trailing slash, no trailing /v1, and the
// cloud dashboard host rewritten to the cloud API host.
func NormalizeHost(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("host is empty")
	}

	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid host %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid host %q", raw)
	}

	u.Host = strings.ToLower(u.Host)
	u.RawQuery = ""
	u.Fragment = ""

	path := strings.TrimRight(u.Path, "/")
	path = strings.TrimSuffix(path, "/v1")
	path = strings.TrimRight(path, "/")
	u.Path = path

	if u.Host == cloudDashboardHost {
		return cloudAPIHost, nil
	}
	return u.String(), nil
}
