package intent

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

// coinNames is checked in order; the first substring hit wins.
var coinNames = []struct {
	name   string
	symbol string
}{
	{"bitcoin", "BTC"}, {"btc", "BTC"},
	{"ethereum", "ETH"}, {"eth", "ETH"},
	{"cardano", "ADA"}, {"ada", "ADA"},
	{"polkadot", "DOT"}, {"dot", "DOT"},
	{"chainlink", "LINK"}, {"link", "LINK"},
	{"solana", "SOL"}, {"sol", "SOL"},
	{"polygon", "MATIC"}, {"matic", "MATIC"},
	{"dogecoin", "DOGE"}, {"doge", "DOGE"},
	{"shiba", "SHIB"}, {"shib", "SHIB"},
	{"avalanche", "AVAX"}, {"avax", "AVAX"},
	{"cosmos", "ATOM"}, {"atom", "ATOM"},
	{"ripple", "XRP"}, {"xrp", "XRP"},
	{"binance", "BNB"}, {"bnb", "BNB"},
	{"litecoin", "LTC"}, {"ltc", "LTC"},
}

var removableSymbols = map[string]bool{
	"BTC": true, "ETH": true, "ADA": true, "DOT": true, "LINK": true,
	"SOL": true, "MATIC": true, "DOGE": true, "SHIB": true, "AVAX": true,
	"ATOM": true, "XRP": true, "BNB": true, "LTC": true, "BCH": true,
}

var holdingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)i have (\d+(?:\.\d+)?)\s+(\w+)`),
	regexp.MustCompile(`(?i)add (\d+(?:\.\d+)?)\s+(\w+)`),
	regexp.MustCompile(`(\d+(?:\.\d+)?)\s+(\w+)`),
}

var nonLetters = regexp.MustCompile(`[^A-Z]`)

const (
	chatTopLimit  = 5
	chatChartDays = 7
)

// KeywordClassifier routes messages with substring and regex rules.
type KeywordClassifier struct{}

func NewKeywordClassifier() *KeywordClassifier { return &KeywordClassifier{} }

func (KeywordClassifier) Classify(_ context.Context, scope Scope, message string) (Intent, error) {
	if scope == ScopePortfolio {
		return classifyPortfolio(message), nil
	}
	return classifyCrypto(message), nil
}

func classifyCrypto(message string) Intent {
	lower := strings.ToLower(message)
	symbol := ExtractCoinSymbol(message)

	if containsAny(lower, "price", "trading", "worth") {
		if symbol != "" {
			return Intent{Kind: KindPrice, Symbol: symbol}
		}
		return Intent{Kind: KindTop, Limit: chatTopLimit}
	}
	if containsAny(lower, "trending", "popular", "hot") {
		return Intent{Kind: KindTrending}
	}
	if containsAny(lower, "chart", "graph", "history") && symbol != "" {
		return Intent{Kind: KindChart, Symbol: symbol, Days: chatChartDays}
	}
	if symbol != "" {
		return Intent{Kind: KindDetails, Symbol: symbol}
	}
	return Intent{Kind: KindHelp}
}

func classifyPortfolio(message string) Intent {
	if symbol, amount, ok := ParseHolding(message); ok {
		return Intent{Kind: KindPortfolioAdd, Symbol: symbol, Amount: amount}
	}
	lower := strings.ToLower(message)
	// Destructive commands are checked first so "clear portfolio" is not
	// swallowed by the "portfolio" keyword.
	if containsAny(lower, "clear", "reset") {
		return Intent{Kind: KindPortfolioClear}
	}
	if containsAny(lower, "remove", "sell", "delete") {
		if symbols := ExtractSymbols(message); len(symbols) > 0 {
			return Intent{Kind: KindPortfolioRemove, Symbols: symbols}
		}
	}
	if containsAny(lower, "portfolio", "holdings", "value", "worth") {
		return Intent{Kind: KindPortfolioShow}
	}
	return Intent{Kind: KindHelp}
}

// ExtractCoinSymbol returns the ticker of the first known coin name or
// ticker mentioned anywhere in message, or "".
func ExtractCoinSymbol(message string) string {
	lower := strings.ToLower(message)
	for _, c := range coinNames {
		if strings.Contains(lower, c.name) {
			return c.symbol
		}
	}
	return ""
}

// ParseHolding finds "I have 2 ETH" style statements. The amount must be
// positive.
func ParseHolding(message string) (symbol, amount string, ok bool) {
	for _, re := range holdingPatterns {
		m := re.FindStringSubmatch(message)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil || v <= 0 {
			continue
		}
		return strings.ToUpper(m[2]), m[1], true
	}
	return "", "", false
}

// ExtractSymbols returns the known tickers appearing as whole words.
func ExtractSymbols(message string) []string {
	var out []string
	for _, word := range strings.Fields(strings.ToUpper(message)) {
		clean := nonLetters.ReplaceAllString(word, "")
		if removableSymbols[clean] {
			out = append(out, clean)
		}
	}
	return out
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
