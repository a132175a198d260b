// Package urlpolicy checks configured and fetched URLs against a scheme and
// host allow-list.
package urlpolicy

import (
	"fmt"
	"net/url"
	"strings"
)

type Policy struct {
	// Name labels errors, usually the env var the URL came from.
	Name    string
	Schemes []string
	// Hosts restricts the hostname when non-nil. HostsFrom names its source.
	Hosts     map[string]struct{}
	HostsFrom string
	// Bare rejects query strings and fragments.
	Bare bool
}

// Web allows plain http and https URLs on any host.
func Web(name string) Policy {
	return Policy{Name: name, Schemes: []string{"http", "https"}}
}

// Check parses raw and returns it when it satisfies p.
func (p Policy) Check(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", p.Name, err)
	}
	if !u.IsAbs() || u.Hostname() == "" {
		return nil, p.errorf(raw, "absolute URL with host is required")
	}
	if u.User != nil {
		return nil, p.errorf(raw, "userinfo is not allowed")
	}
	if p.Bare && (u.RawQuery != "" || u.Fragment != "") {
		return nil, p.errorf(raw, "query and fragment are not allowed")
	}

	scheme := strings.ToLower(u.Scheme)
	ok := false
	for _, s := range p.Schemes {
		ok = ok || s == scheme
	}
	if !ok {
		return nil, p.errorf(raw, strings.Join(p.Schemes, " or ")+" is required")
	}

	host := strings.ToLower(u.Hostname())
	if p.Hosts != nil {
		if _, allowed := p.Hosts[host]; !allowed {
			return nil, p.errorf(raw, fmt.Sprintf("host %q is not in %s", host, p.HostsFrom))
		}
	}
	return u, nil
}

func (p Policy) errorf(raw, reason string) error {
	return fmt.Errorf("invalid %s %q: %s", p.Name, redact(raw), reason)
}

// Hosts turns a configured host list into a lookup set. Schemes, paths and
// ports are stripped. An empty result falls back to defaults.
func Hosts(list []string, defaults ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(list))
	for _, h := range list {
		v := strings.ToLower(strings.TrimSpace(h))
		v = strings.TrimPrefix(v, "http://")
		v = strings.TrimPrefix(v, "https://")
		if i := strings.IndexByte(v, '/'); i >= 0 {
			v = v[:i]
		}
		if i := strings.LastIndexByte(v, ':'); i >= 0 {
			v = v[:i]
		}
		if v != "" {
			out[v] = struct{}{}
		}
	}
	if len(out) == 0 {
		for _, d := range defaults {
			out[d] = struct{}{}
		}
	}
	return out
}

// redact drops userinfo and the query so credentials never reach logs.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.User != nil {
		u.User = url.User("xxx")
	}
	u.RawQuery = ""
	return u.String()
}
