package model

// DefaultExponent is assumed for denoms without enriched metadata.
const DefaultExponent int32 = 6

// Token is display metadata for a denom.
type Token struct {
	Denom    string `json:"denom"`
	Exponent int32  `json:"exponent"`
	Symbol   string `json:"symbol,omitempty"`
	Name     string `json:"name,omitempty"`
}
