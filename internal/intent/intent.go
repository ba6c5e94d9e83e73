package intent

import "context"

// Scope selects which chat surface a message arrived on. The same words
// route differently: "worth" is a price question in crypto chat and a
// valuation request in portfolio chat.
type Scope string

const (
	ScopeCrypto    Scope = "crypto"
	ScopePortfolio Scope = "portfolio"
)

type Kind string

const (
	KindPrice           Kind = "price"
	KindTop             Kind = "top"
	KindTrending        Kind = "trending"
	KindChart           Kind = "chart"
	KindDetails         Kind = "details"
	KindPortfolioAdd    Kind = "portfolio_add"
	KindPortfolioShow   Kind = "portfolio_show"
	KindPortfolioRemove Kind = "portfolio_remove"
	KindPortfolioClear  Kind = "portfolio_clear"
	KindHelp            Kind = "help"
)

// Intent is a classified chat message. Symbol is an upper-case ticker,
// Amount is kept as text so the portfolio store does the parsing.
type Intent struct {
	Kind    Kind     `json:"kind"`
	Symbol  string   `json:"symbol,omitempty"`
	Symbols []string `json:"symbols,omitempty"`
	Amount  string   `json:"amount,omitempty"`
	Days    int      `json:"days,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}

type Classifier interface {
	Classify(ctx context.Context, scope Scope, message string) (Intent, error)
}

func validKind(k Kind, scope Scope) bool {
	switch scope {
	case ScopePortfolio:
		switch k {
		case KindPortfolioAdd, KindPortfolioShow, KindPortfolioRemove, KindPortfolioClear, KindHelp:
			return true
		}
	default:
		switch k {
		case KindPrice, KindTop, KindTrending, KindChart, KindDetails, KindHelp:
			return true
		}
	}
	return false
}
