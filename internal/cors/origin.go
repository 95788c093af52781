// SPDX-License-Identifier: MIT

package cors

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Origin is a serialized-comparable web origin. An opaque origin (data:
// URLs, failed parses, tainted redirect chains) serializes to the literal
// value "null" and is same-origin with nothing, itself included.
type Origin struct {
	Scheme string
	Host   string
	Port   int
	Opaque bool
}

// OpaqueOriginSerialization is the wire form of an opaque origin.
const OpaqueOriginSerialization = "null"

// OriginFromURL derives the origin of u. Non-hierarchical schemes yield
// an opaque origin.
func OriginFromURL(u *url.URL) Origin {
	if u == nil || u.Hostname() == "" {
		return Origin{Opaque: true}
	}
	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case "http", "https", "ws", "wss", "ftp":
	default:
		return Origin{Opaque: true}
	}
	port := defaultPort(scheme)
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			port = n
		}
	}
	return Origin{Scheme: scheme, Host: strings.ToLower(u.Hostname()), Port: port}
}

// ParseOrigin parses a serialized origin such as "https://example.com" or
// the literal "null".
func ParseOrigin(s string) (Origin, error) {
	s = strings.TrimSpace(s)
	if s == OpaqueOriginSerialization {
		return Origin{Opaque: true}, nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return Origin{}, fmt.Errorf("parse origin %q: %w", s, err)
	}
	if u.Scheme == "" || u.Hostname() == "" || u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		return Origin{}, fmt.Errorf("invalid origin %q", s)
	}
	o := OriginFromURL(u)
	if o.Opaque {
		return Origin{}, fmt.Errorf("invalid origin scheme in %q", s)
	}
	return o, nil
}

func defaultPort(scheme string) int {
	switch scheme {
	case "http", "ws":
		return 80
	case "https", "wss":
		return 443
	case "ftp":
		return 21
	default:
		return 0
	}
}

// Serialize renders the origin in its canonical ASCII form. Default ports
// are elided.
func (o Origin) Serialize() string {
	if o.Opaque {
		return OpaqueOriginSerialization
	}
	if o.Port != 0 && o.Port != defaultPort(o.Scheme) {
		return fmt.Sprintf("%s://%s:%d", o.Scheme, o.Host, o.Port)
	}
	return o.Scheme + "://" + o.Host
}

// IsSameOriginWith reports scheme/host/port equality. Opaque origins never
// compare equal.
func (o Origin) IsSameOriginWith(other Origin) bool {
	if o.Opaque || other.Opaque {
		return false
	}
	return o.Scheme == other.Scheme && o.Host == other.Host && o.Port == other.Port
}

// CanAccessURL reports whether u belongs to this origin.
func (o Origin) CanAccessURL(u *url.URL) bool {
	return o.IsSameOriginWith(OriginFromURL(u))
}

// String implements fmt.Stringer.
func (o Origin) String() string { return o.Serialize() }
