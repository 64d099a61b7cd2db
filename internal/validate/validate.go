package validate

import (
	"fmt"
	"net/netip"
	"net/url"
	"strings"
)

// Reason classifies why a field was rejected.
type Reason string

const (
	ReasonMalformed     Reason = "malformed"
	ReasonScheme        Reason = "unsupported_scheme"
	ReasonDomain        Reason = "domain_not_allowed"
	ReasonPrivateHost   Reason = "private_host"
	ReasonFormat        Reason = "format_not_allowed"
	ReasonTooLong       Reason = "too_long"
	ReasonUnsafeName    Reason = "unsafe_name"
	ReasonEmptyBatch    Reason = "empty_batch"
	ReasonBatchTooLarge Reason = "batch_too_large"
)

// FieldError reports a rejected request field. It never wraps internal detail
// beyond the field name and classification.
type FieldError struct {
	Field  string
	Reason Reason
	Index  int // element index for batch failures, -1 otherwise
}

func (e *FieldError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("%s[%d]: %s", e.Field, e.Index, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func fieldErr(field string, reason Reason) *FieldError {
	return &FieldError{Field: field, Reason: reason, Index: -1}
}

// nameMetaChars are the shell metacharacters rejected in custom names. The
// format whitelist, not this list, is the defense for the format field.
const nameMetaChars = ";&|`$(){}[]<>"

// Validator checks untrusted request input against the configured whitelists.
// Nothing past this boundary sees an unvalidated value.
type Validator struct {
	domains       map[string]struct{}
	formats       map[string]struct{}
	defaultFormat string
	maxNameLen    int
	maxBatch      int
}

// New builds a Validator from the injected whitelists and caps.
func New(domains, formats []string, defaultFormat string, maxNameLen, maxBatch int) *Validator {
	v := &Validator{
		domains:       make(map[string]struct{}, len(domains)),
		formats:       make(map[string]struct{}, len(formats)),
		defaultFormat: strings.ToLower(strings.TrimSpace(defaultFormat)),
		maxNameLen:    maxNameLen,
		maxBatch:      maxBatch,
	}
	for _, domain := range domains {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain != "" {
			v.domains[domain] = struct{}{}
		}
	}
	for _, format := range formats {
		format = strings.ToLower(strings.TrimSpace(format))
		if format != "" {
			v.formats[format] = struct{}{}
		}
	}
	return v
}

// SourceURL rejects unparseable URLs, hosts outside the domain whitelist, and
// literal IP hosts in private, loopback, or link-local ranges. It returns the
// canonicalized URL string.
func (v *Validator) SourceURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fieldErr("url", ReasonMalformed)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fieldErr("url", ReasonMalformed)
	}
	switch parsed.Scheme {
	case "http", "https":
	default:
		return "", fieldErr("url", ReasonScheme)
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return "", fieldErr("url", ReasonMalformed)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() || addr.IsUnspecified() {
			return "", fieldErr("url", ReasonPrivateHost)
		}
		// Literal public IPs still bypass the domain whitelist.
		return "", fieldErr("url", ReasonDomain)
	}

	if _, ok := v.domains[host]; !ok {
		return "", fieldErr("url", ReasonDomain)
	}

	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""
	return parsed.String(), nil
}

// Format rejects anything outside the format whitelist, case-insensitively,
// and applies the configured default when the value is absent.
func (v *Validator) Format(raw string) (string, error) {
	format := strings.ToLower(strings.TrimSpace(raw))
	if format == "" {
		return v.defaultFormat, nil
	}
	if _, ok := v.formats[format]; !ok {
		return "", fieldErr("format", ReasonFormat)
	}
	return format, nil
}

// OptionalName passes through a trimmed display name, rejecting length
// overruns, traversal sequences, path separators, leading dots, and shell
// metacharacters. An empty value is allowed.
func (v *Validator) OptionalName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", nil
	}
	if len(name) > v.maxNameLen {
		return "", fieldErr("customName", ReasonTooLong)
	}
	if strings.Contains(name, "..") ||
		strings.ContainsAny(name, `/\`) ||
		strings.HasPrefix(name, ".") ||
		strings.ContainsAny(name, nameMetaChars) {
		return "", fieldErr("customName", ReasonUnsafeName)
	}
	return name, nil
}

// URLBatch validates every element of a URL list, failing the whole batch on
// the first invalid element with its index recorded.
func (v *Validator) URLBatch(raw []string) ([]string, error) {
	if len(raw) == 0 {
		return nil, fieldErr("urls", ReasonEmptyBatch)
	}
	if len(raw) > v.maxBatch {
		return nil, fieldErr("urls", ReasonBatchTooLarge)
	}
	out := make([]string, 0, len(raw))
	for i, element := range raw {
		canonical, err := v.SourceURL(element)
		if err != nil {
			return nil, &FieldError{Field: "urls", Reason: err.(*FieldError).Reason, Index: i}
		}
		out = append(out, canonical)
	}
	return out, nil
}
