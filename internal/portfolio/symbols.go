package portfolio

import "strings"

var symbolToCoinID = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"ADA":   "cardano",
	"DOT":   "polkadot",
	"LINK":  "chainlink",
	"SOL":   "solana",
	"MATIC": "matic-network",
	"DOGE":  "dogecoin",
	"SHIB":  "shiba-inu",
	"AVAX":  "avalanche-2",
	"ATOM":  "cosmos",
	"XRP":   "ripple",
	"BNB":   "binancecoin",
	"LTC":   "litecoin",
	"BCH":   "bitcoin-cash",
	"UNI":   "uniswap",
	"AAVE":  "aave",
	"SUSHI": "sushi",
	"COMP":  "compound-governance-token",
	"MKR":   "maker",
}

// CoinID maps a ticker to the provider id. Unknown tickers are assumed to
// already be ids and are lower-cased.
func CoinID(symbol string) string {
	symbol = strings.TrimSpace(symbol)
	if id, ok := symbolToCoinID[strings.ToUpper(symbol)]; ok {
		return id
	}
	return strings.ToLower(symbol)
}

// KnownSymbols returns the tickers with a fixed provider id.
func KnownSymbols() []string {
	out := make([]string, 0, len(symbolToCoinID))
	for s := range symbolToCoinID {
		out = append(out, s)
	}
	return out
}
