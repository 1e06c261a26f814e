package monitor

import "strings"

// DefaultDenyHosts lists drop, tunnel and paste hosts commonly used for exfiltration.
func DefaultDenyHosts() []string {
	return []string{
		"pastebin.com",
		"webhook.site",
		"*.ngrok.io",
		"*.ngrok-free.app",
		"*.pipedream.net",
		"*.requestbin.net",
		"*.burpcollaborator.net",
		"*.oastify.com",
		"*.interact.sh",
		"*.onion",
	}
}

// HostMatcher checks hostnames against a deny list of domains.
type HostMatcher struct {
	exact    map[string]bool
	suffixes []string // ".ngrok.io"
}

// NewHostMatcher accepts plain hosts and "*.example.com" patterns. Both forms match
// the domain itself and every subdomain of it.
func NewHostMatcher(hosts []string) *HostMatcher {
	m := &HostMatcher{exact: make(map[string]bool, len(hosts))}
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		h = strings.TrimPrefix(h, "*.")
		if h == "" || m.exact[h] {
			continue
		}
		m.exact[h] = true
		m.suffixes = append(m.suffixes, "."+h)
	}
	return m
}

// Matches reports whether host is on the deny list.
func (m *HostMatcher) Matches(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return false
	}
	if m.exact[host] {
		return true
	}
	for _, suffix := range m.suffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

// Len returns the number of deny entries.
func (m *HostMatcher) Len() int {
	return len(m.exact)
}
