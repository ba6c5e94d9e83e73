package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"crypto-chat-assistant/internal/intent"
	"crypto-chat-assistant/internal/market"
	"crypto-chat-assistant/internal/portfolio"

	"github.com/google/uuid"
)

// ChatReply is one bubble of a chat answer. Type tells the client which
// card to render.
type ChatReply struct {
	ID        string                     `json:"id"`
	Type      string                     `json:"type"`
	Data      any                        `json:"data,omitempty"`
	Portfolio *portfolio.ValuationReport `json:"portfolio,omitempty"`
	Message   string                     `json:"message"`
}

const cryptoHelp = `I can help you with cryptocurrency information! Try asking:

• "What's Bitcoin trading at?" - Get current prices
• "Show me trending coins" - See what's popular
• "ETH chart" - View price charts
• "Tell me about Solana" - Get coin details

What would you like to know?`

const portfolioHelp = `I can help you track your crypto portfolio! Try:

• "I have 2 ETH" - Add holdings
• "Show my portfolio" - View current value
• "Remove BTC" - Remove a holding
• "Clear portfolio" - Start fresh

What would you like to do?`

type pricedSymbol struct {
	market.PriceQuote
	Symbol string `json:"symbol"`
	CoinID string `json:"coinId"`
}

type symbolChart struct {
	Chart  []market.ChartPoint `json:"chart"`
	Symbol string              `json:"symbol"`
	CoinID string              `json:"coinId"`
}

func reply(kind, message string, data any) []ChatReply {
	return []ChatReply{{ID: uuid.NewString(), Type: kind, Data: data, Message: message}}
}

func errorReply(message string) []ChatReply {
	return reply("error", message, nil)
}

// rateLimited returns the throttling variant of a chat error, or the
// generic one.
func rateLimited(err error, throttled, generic string) []ChatReply {
	if errors.Is(err, market.ErrRateLimitExceeded) {
		return errorReply(throttled)
	}
	log.Printf("chat lookup error: %v", err)
	return errorReply(generic)
}

func answerCrypto(ctx context.Context, m market.DataProvider, in intent.Intent) []ChatReply {
	sym := strings.ToUpper(in.Symbol)
	id := portfolio.CoinID(sym)

	switch in.Kind {
	case intent.KindPrice:
		q, err := m.GetCurrentPrice(ctx, id)
		if err != nil {
			return rateLimited(err,
				fmt.Sprintf("API rate limit reached. Please wait a moment and try asking about %s again.", sym),
				fmt.Sprintf("Sorry, I couldn't find price information for %s", sym))
		}
		return reply("price", fmt.Sprintf("%s is currently trading at $%.6f", sym, q.USD),
			pricedSymbol{PriceQuote: q, Symbol: sym, CoinID: id})

	case intent.KindTop:
		coins, err := m.GetTopCoins(ctx, in.Limit)
		if err != nil {
			return rateLimited(err,
				"API rate limit reached. Please wait a moment before requesting price data again.",
				"Sorry, I couldn't fetch cryptocurrency prices right now")
		}
		return reply("top_coins", "Here are the top cryptocurrencies by market cap:", coins)

	case intent.KindTrending:
		coins, err := m.GetTrendingCoins(ctx)
		if err != nil {
			return rateLimited(err,
				"API rate limit reached. Please wait a moment before requesting trending data again.",
				"Sorry, I couldn't fetch trending coins right now")
		}
		return reply("trending", "Here are today's trending cryptocurrencies:", coins)

	case intent.KindChart:
		points, err := m.GetPriceChart(ctx, id, in.Days)
		if err != nil {
			return rateLimited(err,
				fmt.Sprintf("API rate limit reached. Please wait a moment and try asking for %s chart again.", sym),
				fmt.Sprintf("Sorry, I couldn't fetch chart data for %s", sym))
		}
		return reply("chart", fmt.Sprintf("Here's the %d-day price chart for %s:", in.Days, sym),
			symbolChart{Chart: points, Symbol: sym, CoinID: id})

	case intent.KindDetails:
		d, err := m.GetCoinDetails(ctx, id)
		if err != nil {
			return rateLimited(err,
				fmt.Sprintf("API rate limit reached. Please wait a moment and try asking about %s again.", sym),
				fmt.Sprintf("Sorry, I couldn't find information about %s", sym))
		}
		return reply("coin_details", fmt.Sprintf("Here's information about %s (%s):", d.Name, d.Symbol), d)
	}
	return reply("help", cryptoHelp, nil)
}

func answerPortfolio(ctx context.Context, p *portfolio.Store, sessionID string, in intent.Intent) []ChatReply {
	switch in.Kind {
	case intent.KindPortfolioAdd:
		res, err := p.UpsertHolding(sessionID, in.Symbol, in.Amount)
		if err != nil {
			return errorReply(err.Error())
		}
		report, err := p.Valuate(ctx, sessionID)
		if err != nil {
			return portfolioLookupError(err)
		}
		out := reply("holding_added",
			fmt.Sprintf("%s! Your portfolio is now worth $%.2f.", res.Message, report.TotalValue), res)
		out[0].Portfolio = &report
		return out

	case intent.KindPortfolioShow:
		report, err := p.Valuate(ctx, sessionID)
		if err != nil {
			return portfolioLookupError(err)
		}
		msg := "Your portfolio is empty. Add some holdings by saying something like 'I have 2 ETH'"
		if len(report.Holdings) > 0 {
			msg = fmt.Sprintf("Your portfolio is worth $%.2f", report.TotalValue)
		}
		return reply("portfolio_value", msg, report)

	case intent.KindPortfolioRemove:
		results := make([]portfolio.RemoveResult, 0, len(in.Symbols))
		for _, sym := range in.Symbols {
			res, err := p.RemoveHolding(sessionID, sym)
			if err != nil {
				return errorReply(err.Error())
			}
			results = append(results, res)
		}
		report, err := p.Valuate(ctx, sessionID)
		if err != nil {
			return portfolioLookupError(err)
		}
		out := reply("holding_removed",
			fmt.Sprintf("Removed holdings. Your portfolio is now worth $%.2f.", report.TotalValue), results)
		out[0].Portfolio = &report
		return out

	case intent.KindPortfolioClear:
		res := clearResult(p.ClearPortfolio(sessionID))
		return reply("portfolio_cleared", res.Message, res)
	}
	return reply("help", portfolioHelp, nil)
}

func portfolioLookupError(err error) []ChatReply {
	return rateLimited(err, rateLimitMessage, err.Error())
}
