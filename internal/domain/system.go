// Package domain defines the types shared across the federated search
// service: library systems, normalized holdings, search results, and
// per-system health records.
package domain

import "strings"

// Protocol identifies the upstream catalog protocol an adapter speaks.
// The set is closed; configuration referencing an unknown tag is rejected
// at load time.
type Protocol string

const (
	ProtocolKohaSRU             Protocol = "koha_sru"
	ProtocolSRU                 Protocol = "sru"
	ProtocolOCLCWorldCat        Protocol = "oclc_worldcat"
	ProtocolSierraREST          Protocol = "sierra_rest"
	ProtocolPolarisPAPI         Protocol = "polaris_papi"
	ProtocolEnterpriseScrape    Protocol = "sirsi_enterprise_scrape"
	ProtocolBiblioCommonsScrape Protocol = "bibliocommons_scrape"
	ProtocolWebScrape           Protocol = "web_scrape"
	ProtocolApolloAPI           Protocol = "apollo_api"
	ProtocolAspenDiscoveryAPI   Protocol = "aspen_discovery_api"
	ProtocolAtriuumScrape       Protocol = "atriuum_scrape"
	ProtocolSpydusScrape        Protocol = "spydus_scrape"
	ProtocolTLCAPI              Protocol = "tlc_api"
	ProtocolPlaywrightScrape    Protocol = "playwright_scrape"
)

// Protocols lists every known protocol tag.
var Protocols = []Protocol{
	ProtocolKohaSRU,
	ProtocolSRU,
	ProtocolOCLCWorldCat,
	ProtocolSierraREST,
	ProtocolPolarisPAPI,
	ProtocolEnterpriseScrape,
	ProtocolBiblioCommonsScrape,
	ProtocolWebScrape,
	ProtocolApolloAPI,
	ProtocolAspenDiscoveryAPI,
	ProtocolAtriuumScrape,
	ProtocolSpydusScrape,
	ProtocolTLCAPI,
	ProtocolPlaywrightScrape,
}

// Valid reports whether p is a known protocol tag.
func (p Protocol) Valid() bool {
	for _, known := range Protocols {
		if p == known {
			return true
		}
	}
	return false
}

func (p Protocol) String() string { return string(p) }

// LibrarySystem describes one federated catalog target. Systems are
// constructed once at startup from configuration and never mutated.
type LibrarySystem struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Vendor     string          `json:"vendor,omitempty"`
	Region     string          `json:"region,omitempty"`
	CatalogURL string          `json:"catalogUrl,omitempty"`
	Enabled    bool            `json:"enabled"`
	Branches   []Branch        `json:"branches"`
	Adapters   []AdapterConfig `json:"adapters"`
}

// Branch is one physical location within a library system. Branch IDs
// are namespaced under the owning system: "<systemId>:<code>".
type Branch struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
	City string `json:"city,omitempty"`
}

// BranchByCode returns the branch with the given code, if any.
func (s *LibrarySystem) BranchByCode(code string) (Branch, bool) {
	for _, b := range s.Branches {
		if strings.EqualFold(b.Code, code) {
			return b, true
		}
	}
	return Branch{}, false
}

// AdapterConfig configures a single adapter attached to a system.
// Credential fields name environment variables; the values are read once
// at adapter construction and never stored here.
type AdapterConfig struct {
	Protocol           Protocol          `json:"protocol"`
	BaseURL            string            `json:"baseUrl"`
	TimeoutMS          int               `json:"timeoutMs,omitempty"`
	MaxConcurrency     int               `json:"maxConcurrency,omitempty"`
	ClientKeyEnvVar    string            `json:"-"`
	ClientSecretEnvVar string            `json:"-"`
	Extra              map[string]string `json:"-"`
}

// Timeout returns the configured per-request timeout, or fallback when
// the config leaves it unset.
func (c AdapterConfig) Timeout(fallback int) int {
	if c.TimeoutMS > 0 {
		return c.TimeoutMS
	}
	return fallback
}

// Concurrency returns the configured per-host concurrency bound, or
// fallback when unset.
func (c AdapterConfig) Concurrency(fallback int) int {
	if c.MaxConcurrency > 0 {
		return c.MaxConcurrency
	}
	return fallback
}
