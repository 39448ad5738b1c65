package model

// AssetClass groups symbols by market.
type AssetClass string

const (
	AssetEquity AssetClass = "equity"
	AssetCrypto AssetClass = "crypto"
)

// SymbolSpec binds a tracked symbol to exactly one price source.
type SymbolSpec struct {
	Symbol         string     `yaml:"symbol" json:"symbol"`
	Source         string     `yaml:"source" json:"source"`
	AssetClass     AssetClass `yaml:"asset_class" json:"asset_class"`
	ProviderSymbol string     `yaml:"provider_symbol,omitempty" json:"provider_symbol,omitempty"`
}

// Universe is the fixed set of tracked symbols for a run.
type Universe []SymbolSpec

// Symbols returns the tracked identifiers in configured order.
func (u Universe) Symbols() []string {
	out := make([]string, len(u))
	for i, s := range u {
		out[i] = s.Symbol
	}
	return out
}
