package domain

import "strings"

// SymbolMeta carries the static risk attributes of an instrument
type SymbolMeta struct {
	Beta   float64 `json:"beta"`
	Sector string  `json:"sector"`
	Region string  `json:"region"`
}

// DefaultSymbolMeta is used for symbols missing from the table
var DefaultSymbolMeta = SymbolMeta{Beta: 1.0, Sector: "General", Region: "Global"}

// SectorTechnology is the sector label the risk heuristic treats as growth exposure
const SectorTechnology = "Technology"

// StaticMetadata is an in-memory symbol table
type StaticMetadata map[string]SymbolMeta

// DefaultMetadata returns the built-in table of well-known US and NSE listings.
func DefaultMetadata() StaticMetadata {
	return StaticMetadata{
		"AAPL":         {Beta: 1.20, Sector: SectorTechnology, Region: "US"},
		"TSLA":         {Beta: 1.60, Sector: SectorTechnology, Region: "US"},
		"AMZN":         {Beta: 1.15, Sector: SectorTechnology, Region: "US"},
		"MSFT":         {Beta: 1.00, Sector: SectorTechnology, Region: "US"},
		"GOOGL":        {Beta: 1.05, Sector: SectorTechnology, Region: "US"},
		"NVDA":         {Beta: 1.70, Sector: SectorTechnology, Region: "US"},
		"AMD":          {Beta: 1.65, Sector: SectorTechnology, Region: "US"},
		"SCOM":         {Beta: 0.80, Sector: "Telecommunications", Region: "Kenya"},
		"EQTY":         {Beta: 0.70, Sector: "Financials", Region: "Kenya"},
		"KCB":          {Beta: 0.75, Sector: "Financials", Region: "Kenya"},
		"EABL":         {Beta: 0.65, Sector: "Consumer Staples", Region: "Kenya"},
		"T-BILLS":      {Beta: 0.05, Sector: "Fixed Income", Region: "Kenya"},
		"ETF_US_TOTAL": {Beta: 1.00, Sector: "Multi", Region: "US"},
		"ETF_GLOBAL":   {Beta: 0.95, Sector: "Multi", Region: "Global"},
	}
}

// Lookup implements SymbolMetadataProvider
func (m StaticMetadata) Lookup(symbol string) (SymbolMeta, bool) {
	meta, ok := m[strings.ToUpper(symbol)]
	return meta, ok
}

// MetaOrDefault returns the metadata for symbol or DefaultSymbolMeta
func MetaOrDefault(p SymbolMetadataProvider, symbol string) SymbolMeta {
	if p == nil {
		return DefaultSymbolMeta
	}
	if meta, ok := p.Lookup(symbol); ok {
		return meta
	}
	return DefaultSymbolMeta
}
