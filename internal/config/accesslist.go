// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"os"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"

	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/cors"
	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/cors/originaccess"
)

// AccessListDocument is the on-disk YAML shape of the origin access list.
// The gateway admin API reads and writes the same document.
type AccessListDocument struct {
	Entries []AccessListEntry `yaml:"entries" json:"entries"`
}

// AccessListEntry is one allow or block rule scoped to a source origin.
type AccessListEntry struct {
	SourceOrigin    string `yaml:"source_origin" json:"source_origin"`
	Protocol        string `yaml:"protocol,omitempty" json:"protocol,omitempty"`
	Domain          string `yaml:"domain" json:"domain"`
	Port            int    `yaml:"port,omitempty" json:"port,omitempty"`
	MatchSubdomains bool   `yaml:"match_subdomains,omitempty" json:"match_subdomains,omitempty"`
	Priority        string `yaml:"priority,omitempty" json:"priority,omitempty"`
	Block           bool   `yaml:"block,omitempty" json:"block,omitempty"`
}

func parsePriority(s string) (originaccess.Priority, error) {
	switch s {
	case "", "low":
		return originaccess.PriorityLow, nil
	case "medium":
		return originaccess.PriorityMedium, nil
	case "high":
		return originaccess.PriorityHigh, nil
	default:
		return 0, fmt.Errorf("unknown priority %q (supported: low, medium, high)", s)
	}
}

// BuildAccessList validates the document and compiles it into an immutable
// lookup snapshot. Validation failures name the offending entry so bad
// admin submissions are actionable.
func BuildAccessList(doc AccessListDocument) (*originaccess.List, error) {
	entries := make([]originaccess.Entry, 0, len(doc.Entries))
	for i, e := range doc.Entries {
		source, err := cors.ParseOrigin(e.SourceOrigin)
		if err != nil {
			return nil, fmt.Errorf("access list entry %d: source origin: %w", i, err)
		}
		prio, err := parsePriority(e.Priority)
		if err != nil {
			return nil, fmt.Errorf("access list entry %d: %w", i, err)
		}
		entries = append(entries, originaccess.Entry{
			SourceOrigin: source,
			Pattern: originaccess.Pattern{
				Protocol:        e.Protocol,
				Domain:          e.Domain,
				Port:            e.Port,
				MatchSubdomains: e.MatchSubdomains,
				Priority:        prio,
			},
			Block: e.Block,
		})
	}
	list, err := originaccess.NewList(entries)
	if err != nil {
		return nil, fmt.Errorf("build access list: %w", err)
	}
	return list, nil
}

// LoadAccessList reads and compiles the access list file.
func LoadAccessList(path string) (AccessListDocument, *originaccess.List, error) {
	var doc AccessListDocument
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from operator config
	if err != nil {
		return doc, nil, fmt.Errorf("read access list: %w", err)
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, nil, fmt.Errorf("parse access list: %w", err)
	}
	list, err := BuildAccessList(doc)
	if err != nil {
		return doc, nil, err
	}
	return doc, list, nil
}

// SaveAccessList persists the document atomically. renameio handles temp
// file creation, fsync and rename so a crash never leaves a torn file.
func SaveAccessList(path string, doc AccessListDocument) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal access list: %w", err)
	}
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending access list file: %w", err)
	}
	defer pending.Cleanup() //nolint:errcheck // no-op after a successful replace
	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write access list: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace access list: %w", err)
	}
	return nil
}
