package integration

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// StatusMappingEntry maps one external status code of a marketplace to a canonical status
type StatusMappingEntry struct {
	Marketplace  MarketplaceID   `json:"marketplace"`
	ExternalCode string          `json:"external_code"`
	Canonical    CanonicalStatus `json:"canonical"`
}

// NormalizeStatusCode trims and NFC-normalizes a status code so that decomposed
// Hangul from upstream compares equal to the configured code.
func NormalizeStatusCode(code string) string {
	return norm.NFC.String(strings.TrimSpace(code))
}

// StatusMappingTable is the process-wide, read-only status lookup.
// It is validated once at load time; marketplaces that fail validation are blocked.
type StatusMappingTable struct {
	mappings map[MarketplaceID]map[string]CanonicalStatus
	blocked  map[MarketplaceID]*ConfigurationError
}

// NewStatusMappingTable builds the table and checks that every code in each
// marketplace's vocabulary is mapped to a valid canonical status.
// The returned table is usable even when err != nil: failing marketplaces are blocked.
func NewStatusMappingTable(entries []StatusMappingEntry, vocabularies map[MarketplaceID][]string) (*StatusMappingTable, error) {
	t := &StatusMappingTable{
		mappings: make(map[MarketplaceID]map[string]CanonicalStatus),
		blocked:  make(map[MarketplaceID]*ConfigurationError),
	}

	problems := make(map[MarketplaceID][]string)
	for _, e := range entries {
		code := NormalizeStatusCode(e.ExternalCode)
		if code == "" {
			problems[e.Marketplace] = append(problems[e.Marketplace], "empty external code")
			continue
		}
		if !e.Canonical.IsValid() {
			problems[e.Marketplace] = append(problems[e.Marketplace],
				fmt.Sprintf("code %q maps to unknown canonical status %q", code, e.Canonical))
			continue
		}
		m, ok := t.mappings[e.Marketplace]
		if !ok {
			m = make(map[string]CanonicalStatus)
			t.mappings[e.Marketplace] = m
		}
		if prev, dup := m[code]; dup && prev != e.Canonical {
			problems[e.Marketplace] = append(problems[e.Marketplace],
				fmt.Sprintf("code %q mapped twice (%s, %s)", code, prev, e.Canonical))
			continue
		}
		m[code] = e.Canonical
	}

	for marketplace, vocabulary := range vocabularies {
		m := t.mappings[marketplace]
		for _, raw := range vocabulary {
			code := NormalizeStatusCode(raw)
			if _, ok := m[code]; !ok {
				problems[marketplace] = append(problems[marketplace], fmt.Sprintf("no mapping for status %q", code))
			}
		}
	}

	var errs []error
	ids := make([]string, 0, len(problems))
	for id := range problems {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	for _, id := range ids {
		cfgErr := &ConfigurationError{Marketplace: MarketplaceID(id), Problems: problems[MarketplaceID(id)]}
		t.blocked[MarketplaceID(id)] = cfgErr
		errs = append(errs, cfgErr)
	}
	return t, errors.Join(errs...)
}

// Resolve translates an external code. Unknown codes fail closed with a ValidationError.
func (t *StatusMappingTable) Resolve(marketplace MarketplaceID, externalCode string) (CanonicalStatus, error) {
	if err := t.Blocked(marketplace); err != nil {
		return "", err
	}
	code := NormalizeStatusCode(externalCode)
	if status, ok := t.mappings[marketplace][code]; ok {
		return status, nil
	}
	return "", NewValidationError(QuarantineReasonUnmappedStatus,
		fmt.Sprintf("marketplace %s emitted unmapped status code %q", marketplace, code))
}

// Blocked returns the configuration error that blocks the marketplace, if any
func (t *StatusMappingTable) Blocked(marketplace MarketplaceID) error {
	if cfgErr, ok := t.blocked[marketplace]; ok {
		return cfgErr
	}
	return nil
}

// BlockedMarketplaces returns the configuration errors of every blocked marketplace, sorted by id
func (t *StatusMappingTable) BlockedMarketplaces() []*ConfigurationError {
	out := make([]*ConfigurationError, 0, len(t.blocked))
	for _, cfgErr := range t.blocked {
		out = append(out, cfgErr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Marketplace < out[j].Marketplace })
	return out
}

// Snapshot returns every mapping sorted by marketplace then code
func (t *StatusMappingTable) Snapshot() []StatusMappingEntry {
	out := make([]StatusMappingEntry, 0)
	for marketplace, m := range t.mappings {
		for code, status := range m {
			out = append(out, StatusMappingEntry{Marketplace: marketplace, ExternalCode: code, Canonical: status})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Marketplace != out[j].Marketplace {
			return out[i].Marketplace < out[j].Marketplace
		}
		return out[i].ExternalCode < out[j].ExternalCode
	})
	return out
}
