// SPDX-License-Identifier: MIT

// Package originaccess implements the origin access list: per-source-origin
// allow and block patterns that can short-circuit the CORS decision for a
// (source origin, target URL) pair. Lookups are pure functions over an
// immutable snapshot; hot reload swaps whole snapshots atomically.
package originaccess

import (
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"

	"golang.org/x/net/publicsuffix"

	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/cors"
)

// Decision is the verdict of a list lookup.
type Decision string

const (
	DecisionDefault Decision = "default"
	DecisionAllow   Decision = "allow"
	DecisionBlock   Decision = "block"
)

// Priority orders entries; a block entry beats an allow entry of the same
// or lower priority.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

// Pattern describes one target match rule registered for a source origin.
type Pattern struct {
	Protocol        string // "http" or "https"; empty matches both
	Domain          string // lowercased host
	Port            int    // 0 matches any port
	MatchSubdomains bool   // also match *.Domain
	Priority        Priority
}

// Validate rejects patterns that would be dangerously broad. Subdomain
// patterns anchored on a public suffix (for example ".com") would allow
// every registrable domain beneath it.
func (p Pattern) Validate() error {
	if p.Domain == "" {
		return fmt.Errorf("origin access pattern without domain")
	}
	if p.Protocol != "" && p.Protocol != "http" && p.Protocol != "https" {
		return fmt.Errorf("unsupported protocol %q in origin access pattern", p.Protocol)
	}
	if p.MatchSubdomains && isPublicSuffix(p.Domain) {
		return fmt.Errorf("subdomain pattern %q is a public suffix; use a registrable domain", p.Domain)
	}
	return nil
}

func isPublicSuffix(domain string) bool {
	domain = strings.TrimSuffix(domain, ".")
	if domain == "localhost" {
		return false
	}
	etld, _ := publicsuffix.PublicSuffix(domain)
	return etld == domain
}

func (p Pattern) matches(u *url.URL) bool {
	if p.Protocol != "" && !strings.EqualFold(p.Protocol, u.Scheme) {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host != p.Domain {
		if !p.MatchSubdomains || !strings.HasSuffix(host, "."+p.Domain) {
			return false
		}
	}
	if p.Port != 0 {
		target := cors.OriginFromURL(u)
		if target.Port != p.Port {
			return false
		}
	}
	return true
}

type entrySet struct {
	allow []Pattern
	block []Pattern
}

// List is an immutable origin access snapshot. Build one with NewList and
// share it freely; concurrent lookups need no locking.
type List struct {
	entries map[string]entrySet
}

// Entry binds a pattern to the source origin it applies to.
type Entry struct {
	SourceOrigin cors.Origin
	Pattern      Pattern
	Block        bool
}

// NewList validates all entries and builds a snapshot.
func NewList(entries []Entry) (*List, error) {
	l := &List{entries: make(map[string]entrySet)}
	for _, e := range entries {
		if e.SourceOrigin.Opaque {
			return nil, fmt.Errorf("origin access entry for an opaque source origin")
		}
		if err := e.Pattern.Validate(); err != nil {
			return nil, err
		}
		key := e.SourceOrigin.Serialize()
		set := l.entries[key]
		if e.Block {
			set.block = append(set.block, e.Pattern)
		} else {
			set.allow = append(set.allow, e.Pattern)
		}
		l.entries[key] = set
	}
	return l, nil
}

// Check resolves the (source, target) pair. The highest-priority matching
// entries decide; block wins over allow at equal priority.
func (l *List) Check(source cors.Origin, target *url.URL) Decision {
	if l == nil || target == nil || source.Opaque {
		return DecisionDefault
	}
	set, ok := l.entries[source.Serialize()]
	if !ok {
		return DecisionDefault
	}

	bestAllow, haveAllow := bestPriority(set.allow, target)
	bestBlock, haveBlock := bestPriority(set.block, target)

	switch {
	case haveBlock && (!haveAllow || bestBlock >= bestAllow):
		return DecisionBlock
	case haveAllow:
		return DecisionAllow
	default:
		return DecisionDefault
	}
}

func bestPriority(patterns []Pattern, u *url.URL) (Priority, bool) {
	best, found := PriorityLow, false
	for _, p := range patterns {
		if !p.matches(u) {
			continue
		}
		if !found || p.Priority > best {
			best = p.Priority
		}
		found = true
	}
	return best, found
}

// Holder publishes the current snapshot to concurrent readers and lets the
// config reloader swap it atomically.
type Holder struct {
	current atomic.Pointer[List]
}

// NewHolder starts with the given snapshot; nil means an empty list.
func NewHolder(initial *List) *Holder {
	h := &Holder{}
	if initial == nil {
		initial = &List{entries: map[string]entrySet{}}
	}
	h.current.Store(initial)
	return h
}

// Get returns the current snapshot.
func (h *Holder) Get() *List { return h.current.Load() }

// Swap publishes a new snapshot.
func (h *Holder) Swap(l *List) {
	if l == nil {
		l = &List{entries: map[string]entrySet{}}
	}
	h.current.Store(l)
}
