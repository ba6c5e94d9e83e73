package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"crypto-chat-assistant/internal/intent"
	"crypto-chat-assistant/internal/market"
	"crypto-chat-assistant/internal/portfolio"
	"crypto-chat-assistant/internal/store"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
)

const defaultSession = "default"

// Deps are the shared objects the routes read from. History may be nil
// when the sqlite store is disabled.
type Deps struct {
	Market     market.DataProvider
	Portfolio  *portfolio.Store
	History    *store.Store
	Classifier intent.Classifier
}

type pricesRequest struct {
	CoinIDs []string `json:"coinIds"`
}

type holdingRequest struct {
	SessionID string `json:"sessionId"`
	Symbol    string `json:"symbol"`
	Amount    any    `json:"amount"`
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

func RegisterRoutes(h *server.Hertz, d Deps) {
	h.GET("/api/health", func(_ context.Context, c *app.RequestContext) {
		resp := map[string]any{"status": "OK", "message": "Crypto Chat API is running"}
		if m, ok := d.Classifier.(interface{ Mode() map[string]any }); ok {
			resp["intent"] = m.Mode()
		}
		c.JSON(http.StatusOK, resp)
	})

	registerCrypto(h, d)
	registerPortfolio(h, d)
}

func registerCrypto(h *server.Hertz, d Deps) {
	g := h.Group("/api/crypto")

	g.GET("/price/:id", func(ctx context.Context, c *app.RequestContext) {
		q, err := d.Market.GetCurrentPrice(ctx, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		writeOK(c, q)
	})

	g.POST("/prices", func(ctx context.Context, c *app.RequestContext) {
		var req pricesRequest
		if err := c.BindJSON(&req); err != nil || req.CoinIDs == nil {
			writeFail(c, http.StatusBadRequest, CodeBadRequest, "coinIds array is required")
			return
		}
		quotes, err := d.Market.GetMultiplePrices(ctx, req.CoinIDs)
		if err != nil {
			writeError(c, err)
			return
		}
		writeOK(c, quotes)
	})

	g.GET("/trending", func(ctx context.Context, c *app.RequestContext) {
		coins, err := d.Market.GetTrendingCoins(ctx)
		if err != nil {
			writeError(c, err)
			return
		}
		writeOK(c, coins)
	})

	g.GET("/details/:id", func(ctx context.Context, c *app.RequestContext) {
		details, err := d.Market.GetCoinDetails(ctx, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		writeOK(c, details)
	})

	g.GET("/chart/:id", func(ctx context.Context, c *app.RequestContext) {
		days, err := parsePositive(c.Query("days"), 7, "days")
		if err != nil {
			writeFail(c, http.StatusBadRequest, CodeBadRequest, err.Error())
			return
		}
		points, err := d.Market.GetPriceChart(ctx, c.Param("id"), days)
		if err != nil {
			writeError(c, err)
			return
		}
		writeOK(c, points)
	})

	g.GET("/search", func(ctx context.Context, c *app.RequestContext) {
		q := strings.TrimSpace(c.Query("q"))
		if q == "" {
			writeFail(c, http.StatusBadRequest, CodeBadRequest, "Query parameter q is required")
			return
		}
		results, err := d.Market.SearchCoins(ctx, q)
		if err != nil {
			writeError(c, err)
			return
		}
		writeOK(c, results)
	})

	g.GET("/top", func(ctx context.Context, c *app.RequestContext) {
		limit, err := parsePositive(c.Query("limit"), 10, "limit")
		if err != nil {
			writeFail(c, http.StatusBadRequest, CodeBadRequest, err.Error())
			return
		}
		coins, err := d.Market.GetTopCoins(ctx, limit)
		if err != nil {
			writeError(c, err)
			return
		}
		writeOK(c, coins)
	})

	g.POST("/chat", func(ctx context.Context, c *app.RequestContext) {
		var req chatRequest
		if err := c.BindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
			writeFail(c, http.StatusBadRequest, CodeBadRequest, "Message is required")
			return
		}
		in, err := d.Classifier.Classify(ctx, intent.ScopeCrypto, req.Message)
		if err != nil {
			writeError(c, err)
			return
		}
		writeOK(c, answerCrypto(ctx, d.Market, in))
	})
}

func registerPortfolio(h *server.Hertz, d Deps) {
	g := h.Group("/api/portfolio")

	value := func(ctx context.Context, c *app.RequestContext) {
		report, err := d.Portfolio.Valuate(ctx, sessionParam(c))
		if err != nil {
			writeError(c, err)
			return
		}
		writeOK(c, report)
	}
	g.GET("/value", value)
	g.GET("/value/:sessionId", value)

	holdings := func(_ context.Context, c *app.RequestContext) {
		writeOK(c, d.Portfolio.Holdings(sessionParam(c)))
	}
	g.GET("/holdings", holdings)
	g.GET("/holdings/:sessionId", holdings)

	g.POST("/holding", func(_ context.Context, c *app.RequestContext) {
		var req holdingRequest
		if err := c.BindJSON(&req); err != nil {
			writeFail(c, http.StatusBadRequest, CodeBadRequest, "invalid json body")
			return
		}
		amount, ok := amountText(req.Amount)
		if strings.TrimSpace(req.Symbol) == "" || !ok {
			writeFail(c, http.StatusBadRequest, CodeBadRequest, "Symbol and amount are required")
			return
		}
		res, err := d.Portfolio.UpsertHolding(sessionOr(req.SessionID), req.Symbol, amount)
		if err != nil {
			writeError(c, err)
			return
		}
		writeOK(c, res)
	})

	g.DELETE("/holding", func(_ context.Context, c *app.RequestContext) {
		var req holdingRequest
		if err := c.BindJSON(&req); err != nil || strings.TrimSpace(req.Symbol) == "" {
			writeFail(c, http.StatusBadRequest, CodeBadRequest, "Symbol is required")
			return
		}
		res, err := d.Portfolio.RemoveHolding(sessionOr(req.SessionID), req.Symbol)
		if err != nil {
			writeError(c, err)
			return
		}
		writeOK(c, res)
	})

	clearAll := func(_ context.Context, c *app.RequestContext) {
		writeOK(c, clearResult(d.Portfolio.ClearPortfolio(sessionParam(c))))
	}
	g.DELETE("/clear", clearAll)
	g.DELETE("/clear/:sessionId", clearAll)

	history := func(ctx context.Context, c *app.RequestContext) {
		if d.History == nil {
			writeFail(c, http.StatusServiceUnavailable, CodeServiceUnavailable, "history store not configured")
			return
		}
		limit, err := parsePositive(c.Query("limit"), 50, "limit")
		if err != nil {
			writeFail(c, http.StatusBadRequest, CodeBadRequest, err.Error())
			return
		}
		offset, err := parseOffset(c.Query("offset"))
		if err != nil {
			writeFail(c, http.StatusBadRequest, CodeBadRequest, err.Error())
			return
		}
		items, err := d.History.QueryValuations(ctx, sessionParam(c), limit, offset)
		if err != nil {
			writeError(c, err)
			return
		}
		if items == nil {
			items = []store.ValuationRecord{}
		}
		writeOK(c, items)
	}
	g.GET("/history", history)
	g.GET("/history/:sessionId", history)

	g.POST("/chat", func(ctx context.Context, c *app.RequestContext) {
		var req chatRequest
		if err := c.BindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
			writeFail(c, http.StatusBadRequest, CodeBadRequest, "Message is required")
			return
		}
		in, err := d.Classifier.Classify(ctx, intent.ScopePortfolio, req.Message)
		if err != nil {
			writeError(c, err)
			return
		}
		writeOK(c, answerPortfolio(ctx, d.Portfolio, sessionOr(req.SessionID), in))
	})
}

type ClearResult struct {
	Cleared int    `json:"cleared"`
	Message string `json:"message"`
}

func clearResult(n int) ClearResult {
	if n == 0 {
		return ClearResult{Message: "Your portfolio was already empty"}
	}
	return ClearResult{Cleared: n, Message: fmt.Sprintf("Cleared %d holdings from your portfolio", n)}
}

func sessionParam(c *app.RequestContext) string {
	return sessionOr(c.Param("sessionId"))
}

func sessionOr(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return defaultSession
	}
	return id
}

// amountText accepts a JSON number or string.
func amountText(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	}
	return "", false
}

func parsePositive(raw string, def int, name string) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return v, nil
}

func parseOffset(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid offset")
	}
	return v, nil
}
