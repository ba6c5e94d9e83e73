package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/schema"
)

type Config struct {
	Enabled    bool   `yaml:"enabled"`
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	ByAzure    bool   `yaml:"by_azure"`
	APIVersion string `yaml:"api_version"`
	TimeoutMs  int    `yaml:"timeout_ms"`
}

// LLMClassifier asks a chat model to label messages and falls back to the
// keyword rules when the model is unavailable or answers badly.
type LLMClassifier struct {
	enabled        bool
	model          *openai.ChatModel
	modelName      string
	disabledReason string
	fallback       Classifier
}

func NewLLMClassifier(cfg Config, fallback Classifier) *LLMClassifier {
	if fallback == nil {
		fallback = NewKeywordClassifier()
	}
	if !cfg.Enabled {
		return &LLMClassifier{disabledReason: "disabled by config", fallback: fallback}
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = os.Getenv("OPENAI_MODEL")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv("OPENAI_BASE_URL")
	}
	if cfg.APIKey == "" || cfg.Model == "" {
		log.Printf("intent agent disabled: missing api key or model")
		return &LLMClassifier{disabledReason: "api_key or model missing", fallback: fallback}
	}

	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	model, err := openai.NewChatModel(context.Background(), &openai.ChatModelConfig{
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		BaseURL:    cfg.BaseURL,
		ByAzure:    cfg.ByAzure,
		APIVersion: cfg.APIVersion,
		Timeout:    timeout,
	})
	if err != nil {
		log.Printf("intent agent init error: %v", err)
		return &LLMClassifier{disabledReason: "init failed", fallback: fallback}
	}
	return &LLMClassifier{enabled: true, model: model, modelName: cfg.Model, fallback: fallback}
}

// Mode reports "llm" or "fallback" with the reason, for the health route.
func (c *LLMClassifier) Mode() map[string]any {
	if c == nil || !c.enabled {
		reason := "not configured"
		if c != nil && c.disabledReason != "" {
			reason = c.disabledReason
		}
		return map[string]any{"mode": "fallback", "reason": reason}
	}
	return map[string]any{"mode": "llm", "model": c.modelName}
}

const cryptoPrompt = `You label messages sent to a cryptocurrency price assistant. Output ONLY valid JSON.
Keys: kind (one of price, top, trending, chart, details, help), symbol (upper-case ticker or empty), days (integer, chart only), limit (integer, top only).
No extra text.`

const portfolioPrompt = `You label messages sent to a cryptocurrency portfolio tracker. Output ONLY valid JSON.
Keys: kind (one of portfolio_add, portfolio_show, portfolio_remove, portfolio_clear, help), symbol (upper-case ticker, portfolio_add only), amount (decimal string, portfolio_add only), symbols (array of upper-case tickers, portfolio_remove only).
No extra text.`

func (c *LLMClassifier) Classify(ctx context.Context, scope Scope, message string) (Intent, error) {
	if c == nil || !c.enabled || c.model == nil {
		return c.fallbackClassify(ctx, scope, message)
	}

	system := cryptoPrompt
	if scope == ScopePortfolio {
		system = portfolioPrompt
	}
	messages := []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(message),
	}
	resp, err := c.model.Generate(ctx, messages)
	if err != nil {
		logLLMError(err)
		return c.fallbackClassify(ctx, scope, message)
	}
	in, err := parseIntent(strings.TrimSpace(resp.Content), scope)
	if err != nil {
		log.Printf("intent agent parse error: %v", err)
		return c.fallbackClassify(ctx, scope, message)
	}
	return in, nil
}

func (c *LLMClassifier) fallbackClassify(ctx context.Context, scope Scope, message string) (Intent, error) {
	if c == nil || c.fallback == nil {
		return NewKeywordClassifier().Classify(ctx, scope, message)
	}
	return c.fallback.Classify(ctx, scope, message)
}

func parseIntent(text string, scope Scope) (Intent, error) {
	var out Intent
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		jsonStr := extractFirstJSONObject(text)
		if jsonStr == "" {
			return Intent{}, fmt.Errorf("no json object found")
		}
		if err := json.Unmarshal([]byte(jsonStr), &out); err != nil {
			return Intent{}, fmt.Errorf("parse intent: %w", err)
		}
	}
	return sanitizeIntent(out, scope)
}

func sanitizeIntent(in Intent, scope Scope) (Intent, error) {
	in.Kind = Kind(strings.ToLower(strings.TrimSpace(string(in.Kind))))
	if !validKind(in.Kind, scope) {
		return Intent{}, fmt.Errorf("unknown kind %q for %s", in.Kind, scope)
	}
	in.Symbol = strings.ToUpper(strings.TrimSpace(in.Symbol))
	for i, s := range in.Symbols {
		in.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	switch in.Kind {
	case KindPrice, KindChart, KindDetails, KindPortfolioAdd:
		if in.Symbol == "" {
			return Intent{}, fmt.Errorf("%s without symbol", in.Kind)
		}
	case KindPortfolioRemove:
		if len(in.Symbols) == 0 {
			return Intent{}, fmt.Errorf("%s without symbols", in.Kind)
		}
	}
	if in.Kind == KindPortfolioAdd && strings.TrimSpace(in.Amount) == "" {
		return Intent{}, fmt.Errorf("%s without amount", in.Kind)
	}
	if in.Kind == KindChart && in.Days <= 0 {
		in.Days = chatChartDays
	}
	if in.Kind == KindTop && in.Limit <= 0 {
		in.Limit = chatTopLimit
	}
	return in, nil
}

func extractFirstJSONObject(s string) string {
	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func logLLMError(err error) {
	apiErr := &openai.APIError{}
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if len(msg) > 300 {
			msg = msg[:300] + "..."
		}
		log.Printf("intent agent api error: status=%d message=%s", apiErr.HTTPStatusCode, msg)
		return
	}
	log.Printf("intent agent error: %v", err)
}
