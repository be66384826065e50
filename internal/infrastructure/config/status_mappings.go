package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/marketsync/backend/internal/domain/integration"
)

// StatusMappingFile is the YAML document that maps external order statuses
// onto canonical statuses
type StatusMappingFile struct {
	// Providers maps provider -> external code -> canonical status
	Providers map[string]map[string]string `yaml:"providers"`
	// Marketplaces holds per-marketplace overrides keyed by marketplace id
	Marketplaces map[string]map[string]string `yaml:"marketplaces"`
}

// LoadStatusMappings reads a status mapping file
func LoadStatusMappings(path string) (*StatusMappingFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read status mappings: %w", err)
	}
	return ParseStatusMappings(data)
}

// ParseStatusMappings decodes a status mapping document
func ParseStatusMappings(data []byte) (*StatusMappingFile, error) {
	var f StatusMappingFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse status mappings: %w", err)
	}
	return &f, nil
}

// Entries expands the provider mappings and overrides for every configured marketplace
func (f *StatusMappingFile) Entries(marketplaces []MarketplaceConfig) []integration.StatusMappingEntry {
	var entries []integration.StatusMappingEntry
	for _, m := range marketplaces {
		merged := make(map[string]string)
		for code, status := range f.Providers[m.Provider] {
			merged[code] = status
		}
		for code, status := range f.Marketplaces[m.ID] {
			merged[code] = status
		}

		codes := make([]string, 0, len(merged))
		for code := range merged {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		for _, code := range codes {
			entries = append(entries, integration.StatusMappingEntry{
				Marketplace:  integration.MarketplaceID(m.ID),
				ExternalCode: code,
				Canonical:    integration.CanonicalStatus(merged[code]),
			})
		}
	}
	return entries
}
