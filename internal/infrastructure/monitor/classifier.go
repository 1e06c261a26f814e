package monitor

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/doeshing/extscan-go/internal/domain"
	"github.com/doeshing/extscan-go/internal/ports"
)

// ErrMalformedEvent marks an event whose payload cannot be classified.
var ErrMalformedEvent = errors.New("malformed behavior event")

const (
	overlayMaxOpacity = 0.1
	overlayMinZIndex  = 10000
	encodedQueryLen   = 256
)

var credentialMarkers = []string{"password", "passwd", "pwd", "token", "cookie", "session", "secret", "apikey", "api_key", "auth"}

// sensitiveDataAPIs expose browsing history, bookmarks or cookies.
var sensitiveDataAPIs = []string{
	"chrome.history.", "browser.history.",
	"chrome.bookmarks.", "browser.bookmarks.",
	"chrome.cookies.", "browser.cookies.",
	"document.cookie",
}

var dataAPIs = []string{
	"localstorage", "sessionstorage", "indexeddb",
	"navigator.clipboard.read",
	"htmlcanvaselement.todataurl", "canvas.todataurl",
	"webglrenderingcontext.getparameter",
}

var dangerousAPIs = []string{
	"eval", "function",
	"document.write", "document.writeln",
	"chrome.debugger.", "browser.debugger.",
	"chrome.management.", "browser.management.",
	"chrome.scripting.executescript", "chrome.tabs.executescript",
}

// stringBodyAPIs are dangerous only when called with a string body.
var stringBodyAPIs = []string{"settimeout", "setinterval"}

// Classifier maps live events to behavioral categories. It is stateless after construction.
type Classifier struct {
	deny *HostMatcher
}

// NewClassifier builds a classifier using denyHosts, or DefaultDenyHosts when empty.
func NewClassifier(denyHosts []string) *Classifier {
	if len(denyHosts) == 0 {
		denyHosts = DefaultDenyHosts()
	}
	return &Classifier{deny: NewHostMatcher(denyHosts)}
}

// Classify returns the category of ev. ok is false for benign events.
func (c *Classifier) Classify(ev domain.BehaviorEvent) (domain.BehaviorCategory, bool, error) {
	switch ev.Kind {
	case domain.KindRequest, domain.KindFetch, domain.KindXHR, domain.KindBeacon, domain.KindImage:
		return c.classifyRequest(ev)
	case domain.KindKeyDown, domain.KindKeyUp, domain.KindKeyPress:
		return classifyKeystroke(ev)
	case domain.KindListener:
		return classifyListener(ev)
	case domain.KindFormSubmit, domain.KindFormActionChange:
		return classifyForm(ev)
	case domain.KindDOMInsert:
		return classifyOverlay(ev)
	case domain.KindAPICall, domain.KindStorageAccess, domain.KindCookieAccess:
		return classifyAPI(ev)
	case "":
		return "", false, fmt.Errorf("%w: empty kind", ErrMalformedEvent)
	default:
		return "", false, nil
	}
}

func (c *Classifier) classifyRequest(ev domain.BehaviorEvent) (domain.BehaviorCategory, bool, error) {
	target, err := parseURL(ev.Payload[domain.PayloadURL])
	if err != nil {
		return "", false, err
	}
	if target.Hostname() == "" {
		return "", false, fmt.Errorf("%w: request url %q has no host", ErrMalformedEvent, target.String())
	}
	if c.deny.Matches(target.Hostname()) {
		return domain.BehaviorSuspiciousRequests, true, nil
	}
	if strings.Contains(strings.ToLower(target.Path), "/api/webhooks/") {
		return domain.BehaviorSuspiciousRequests, true, nil
	}
	for key, values := range target.Query() {
		if hasCredentialMarker(key) {
			return domain.BehaviorSuspiciousRequests, true, nil
		}
		for _, v := range values {
			if len(v) >= encodedQueryLen {
				return domain.BehaviorSuspiciousRequests, true, nil
			}
		}
	}
	if body := ev.Payload[domain.PayloadBody]; body != "" && hasCredentialMarker(body) && crossOrigin(target, ev.Payload[domain.PayloadOrigin]) {
		return domain.BehaviorSuspiciousRequests, true, nil
	}
	return "", false, nil
}

func classifyKeystroke(ev domain.BehaviorEvent) (domain.BehaviorCategory, bool, error) {
	if isPasswordInput(ev) || isGlobalTarget(ev.Payload[domain.PayloadTarget]) {
		return domain.BehaviorKeylogging, true, nil
	}
	return "", false, nil
}

func classifyListener(ev domain.BehaviorEvent) (domain.BehaviorCategory, bool, error) {
	eventType := strings.ToLower(strings.TrimSpace(ev.Payload[domain.PayloadEventType]))
	switch eventType {
	case "":
		return "", false, fmt.Errorf("%w: listener without event_type", ErrMalformedEvent)
	case "keydown", "keyup", "keypress", "input":
		if isPasswordInput(ev) || isGlobalTarget(ev.Payload[domain.PayloadTarget]) {
			return domain.BehaviorKeylogging, true, nil
		}
	case "submit":
		return domain.BehaviorFormHijacking, true, nil
	}
	return "", false, nil
}

func classifyForm(ev domain.BehaviorEvent) (domain.BehaviorCategory, bool, error) {
	raw := strings.TrimSpace(ev.Payload[domain.PayloadAction])
	if raw == "" {
		return "", false, nil
	}
	action, err := parseURL(raw)
	if err != nil {
		return "", false, err
	}
	if action.Hostname() == "" {
		return "", false, nil
	}
	origin := ev.Payload[domain.PayloadOrigin]
	if origin == "" {
		if ev.Kind == domain.KindFormActionChange {
			return domain.BehaviorFormHijacking, true, nil
		}
		return "", false, nil
	}
	if crossOrigin(action, origin) {
		return domain.BehaviorFormHijacking, true, nil
	}
	return "", false, nil
}

func classifyOverlay(ev domain.BehaviorEvent) (domain.BehaviorCategory, bool, error) {
	position := strings.ToLower(ev.Payload[domain.PayloadPosition])
	positioned := position == "fixed" || position == "absolute"
	iframe := strings.EqualFold(ev.Payload[domain.PayloadTag], "iframe")

	transparent := false
	if raw := ev.Payload[domain.PayloadOpacity]; raw != "" {
		opacity, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return "", false, fmt.Errorf("%w: opacity %q", ErrMalformedEvent, raw)
		}
		transparent = opacity <= overlayMaxOpacity
	}
	stacked := false
	if raw := ev.Payload[domain.PayloadZIndex]; raw != "" && raw != "auto" {
		z, err := strconv.Atoi(raw)
		if err != nil {
			return "", false, fmt.Errorf("%w: z_index %q", ErrMalformedEvent, raw)
		}
		stacked = z >= overlayMinZIndex
	}

	switch {
	case positioned && (transparent || stacked):
		return domain.BehaviorClickjacking, true, nil
	case iframe && transparent:
		return domain.BehaviorClickjacking, true, nil
	default:
		return "", false, nil
	}
}

func classifyAPI(ev domain.BehaviorEvent) (domain.BehaviorCategory, bool, error) {
	switch ev.Kind {
	case domain.KindStorageAccess, domain.KindCookieAccess:
		return domain.BehaviorDataAccess, true, nil
	}
	api := strings.ToLower(strings.TrimSpace(ev.Payload[domain.PayloadAPI]))
	if api == "" {
		return "", false, fmt.Errorf("%w: api_call without api", ErrMalformedEvent)
	}
	if hasAPIPrefix(api, sensitiveDataAPIs) || hasAPIPrefix(api, dataAPIs) {
		return domain.BehaviorDataAccess, true, nil
	}
	if hasAPIPrefix(api, dangerousAPIs) {
		return domain.BehaviorDangerousAPIs, true, nil
	}
	if hasAPIPrefix(api, stringBodyAPIs) && strings.EqualFold(ev.Payload[domain.PayloadArgType], "string") {
		return domain.BehaviorDangerousAPIs, true, nil
	}
	return "", false, nil
}

// IsSensitiveDataAccess reports whether ev reads history, bookmarks or cookies. Generic
// storage, clipboard and canvas reads are data access but not sensitive.
func IsSensitiveDataAccess(ev domain.BehaviorEvent) bool {
	if ev.Kind == domain.KindCookieAccess {
		return true
	}
	api := strings.ToLower(strings.TrimSpace(ev.Payload[domain.PayloadAPI]))
	return api != "" && hasAPIPrefix(api, sensitiveDataAPIs)
}

func parseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: missing url", ErrMalformedEvent)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return u, nil
}

// crossOrigin reports whether target's host differs from origin's. An unparseable or
// empty origin counts as cross-origin.
func crossOrigin(target *url.URL, origin string) bool {
	o, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || o.Hostname() == "" {
		return true
	}
	return !strings.EqualFold(o.Hostname(), target.Hostname())
}

func hasAPIPrefix(api string, prefixes []string) bool {
	for _, p := range prefixes {
		if api == p {
			return true
		}
		if strings.HasPrefix(api, p) && (strings.HasSuffix(p, ".") || !isIdentRune(api[len(p)])) {
			return true
		}
	}
	return false
}

func isIdentRune(b byte) bool {
	return b == '_' || b == '$' || ('0' <= b && b <= '9') || ('a' <= b && b <= 'z')
}

func hasCredentialMarker(s string) bool {
	s = strings.ToLower(s)
	for _, marker := range credentialMarkers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

func isPasswordInput(ev domain.BehaviorEvent) bool {
	return strings.EqualFold(strings.TrimSpace(ev.Payload[domain.PayloadInputType]), "password")
}

func isGlobalTarget(target string) bool {
	switch strings.ToLower(strings.TrimSpace(target)) {
	case "document", "window", "body", "document.body":
		return true
	}
	return false
}

var _ ports.EventClassifier = (*Classifier)(nil)
