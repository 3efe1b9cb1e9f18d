package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/vatflow/internal/common"
	"github.com/Veraticus/vatflow/internal/service"
)

// Provider names accepted in Config.Provider.
const (
	ProviderOpenAI = "openai"
	ProviderStub   = "stub"
)

// DefaultDemoPrefix marks credentials that switch the gateway into demo mode.
const DefaultDemoPrefix = "sk-proj-demo"

const stubContent = "(stub)"

// stubUsage is reported when no transport is available.
var stubUsage = Usage{Input: 512, Output: 128, Total: 640}

// Config holds gateway configuration.
type Config struct {
	// Client overrides the transport built from Provider.
	Client        Client
	Pricing       CostEstimator
	APIKey        string
	DemoPrefix    string
	BaseURL       string
	Provider      string
	ModelClassify string
	ModelGeneral  string
	RetryDelay    time.Duration
	Timeout       time.Duration
	Temperature   float64
	MaxTokens     int
	// RequestsPerMinute throttles live calls; zero disables throttling.
	RequestsPerMinute int
}

// CallOptions overrides per-call request parameters.
type CallOptions struct {
	MaxTokens   *int
	Temperature *float64
}

// Response is the result of a gateway call.
type Response struct {
	Model    string
	Content  string
	Usage    Usage
	Cost     float64
	DemoMode bool
	Stub     bool
}

// Status describes how the gateway is configured.
type Status struct {
	Models             map[string]string
	Configured         bool
	DemoMode           bool
	TransportAvailable bool
}

// Gateway performs model calls and records their cost.
type Gateway struct {
	client    Client
	limiter   *rateLimiter
	costs     *CostLog
	logger    *slog.Logger
	cfg       Config
	estimator CostEstimator
}

// NewGateway creates a gateway. A nil cost log discards records.
func NewGateway(cfg Config, costs *CostLog, logger *slog.Logger) (*Gateway, error) {
	if cfg.DemoPrefix == "" {
		cfg.DemoPrefix = DefaultDemoPrefix
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 400 * time.Millisecond
	}
	if cfg.ModelClassify == "" {
		cfg.ModelClassify = "gpt-4o-mini"
	}
	if cfg.ModelGeneral == "" {
		cfg.ModelGeneral = "gpt-4.1-mini"
	}

	estimator := cfg.Pricing
	if estimator == (CostEstimator{}) {
		estimator = DefaultCostEstimator()
	}

	g := &Gateway{
		cfg:       cfg,
		costs:     costs,
		logger:    common.LoggerOrDefault(logger),
		estimator: estimator,
		client:    cfg.Client,
	}

	if g.client == nil && cfg.APIKey != "" && !g.demoMode() {
		switch strings.ToLower(cfg.Provider) {
		case "", ProviderOpenAI:
			client, err := newOpenAIClient(cfg)
			if err != nil {
				return nil, err
			}
			g.client = client
		case ProviderStub, "none":
		default:
			return nil, fmt.Errorf("%w: unsupported LLM provider %q", common.ErrInvalidConfig, cfg.Provider)
		}
	}

	if cfg.RequestsPerMinute > 0 {
		g.limiter = newRateLimiter(cfg.RequestsPerMinute)
	}

	return g, nil
}

// ClassifyModel returns the model used for transaction classification.
func (g *Gateway) ClassifyModel() string { return g.cfg.ModelClassify }

// GeneralModel returns the model used for checklists and other prose.
func (g *Gateway) GeneralModel() string { return g.cfg.ModelGeneral }

func (g *Gateway) demoMode() bool {
	return g.cfg.APIKey != "" && strings.HasPrefix(g.cfg.APIKey, g.cfg.DemoPrefix)
}

// Call sends messages to model. retries is the number of extra attempts made
// after a failed live call.
func (g *Gateway) Call(ctx context.Context, model string, messages []Message, retries int, opts CallOptions) (Response, error) {
	if retries < 0 {
		retries = 0
	}

	switch {
	case g.demoMode():
		resp := demoResponse(model, messages)
		return g.finish(ctx, model, resp, true, false), nil
	case g.client == nil:
		resp := ChatResponse{Model: model, Content: stubContent, Usage: stubUsage}
		return g.finish(ctx, model, resp, false, true), nil
	}

	req := ChatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: opts.Temperature,
	}
	if opts.MaxTokens != nil {
		req.MaxTokens = *opts.MaxTokens
	}

	var resp ChatResponse
	err := common.WithRetry(ctx, func() error {
		if g.limiter != nil {
			if err := g.limiter.wait(ctx); err != nil {
				return err
			}
		}
		var callErr error
		resp, callErr = g.client.Complete(ctx, req)
		return callErr
	}, service.RetryOptions{
		MaxAttempts:  retries + 1,
		InitialDelay: g.cfg.RetryDelay,
		MaxDelay:     g.cfg.RetryDelay * time.Duration(retries+1),
		Linear:       true,
		Jitter:       0.2,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			g.costs.Record(ctx, CallRecord{Model: model, Err: err})
			return Response{}, err
		}
		g.costs.Record(ctx, CallRecord{Model: model, Err: lastError(err)})
		g.logger.Error("LLM call failed", "model", model, "attempts", retries+1, "error", err)
		return Response{}, common.NewKindError(common.KindUpstreamUnavailable, "llm.call",
			fmt.Errorf("%w: %w", common.ErrUpstreamUnavailable, err))
	}

	return g.finish(ctx, model, resp, false, false), nil
}

// finish prices the call and writes its cost record.
func (g *Gateway) finish(ctx context.Context, model string, resp ChatResponse, demo, stub bool) Response {
	cost := g.estimator.Estimate(resp.Usage.Input, resp.Usage.Output)
	g.costs.Record(ctx, CallRecord{
		Model:    model,
		Usage:    resp.Usage,
		Cost:     cost,
		OK:       true,
		DemoMode: demo,
	})

	if stub {
		g.logger.Warn("LLM transport unavailable, returned stub response", "model", model)
	}

	return Response{
		Model:    resp.Model,
		Content:  resp.Content,
		Usage:    resp.Usage,
		Cost:     cost,
		DemoMode: demo,
		Stub:     stub,
	}
}

// Status reports the gateway mode for diagnostics.
func (g *Gateway) Status() Status {
	return Status{
		Configured:         g.cfg.APIKey != "",
		DemoMode:           g.demoMode(),
		TransportAvailable: g.client != nil,
		Models: map[string]string{
			"classify": g.cfg.ModelClassify,
			"general":  g.cfg.ModelGeneral,
		},
	}
}

// lastError strips the retry wrapper so the log carries the provider message.
func lastError(err error) error {
	if wrapped, ok := err.(interface{ Unwrap() []error }); ok {
		errs := wrapped.Unwrap()
		if len(errs) > 0 {
			return errs[len(errs)-1]
		}
	}
	return err
}
