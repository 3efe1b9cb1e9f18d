package llm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// CostLogFile is the file name used under the configured log directory.
const CostLogFile = "ai_calls.jsonl"

const costEvent = "openai_call"

// CallRecord is one logged gateway call.
type CallRecord struct {
	Err      error
	Model    string
	Usage    Usage
	Cost     float64
	OK       bool
	DemoMode bool
}

// CostLog appends one JSON record per gateway call.
type CostLog struct {
	logger *slog.Logger
	closer io.Closer
	mu     sync.Mutex
}

// NewCostLog writes records to w. A nil writer discards records.
func NewCostLog(w io.Writer) *CostLog {
	if w == nil {
		w = io.Discard
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.TimeKey:
				a.Key = "ts"
			case slog.MessageKey:
				a.Key = "event"
			case slog.LevelKey:
				return slog.Attr{}
			}
			return a
		},
	})
	return &CostLog{logger: slog.New(handler)}
}

// OpenCostLog opens (creating if needed) the JSONL cost log under dir.
func OpenCostLog(dir string) (*CostLog, error) {
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	path := filepath.Join(dir, CostLogFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // path is from config
	if err != nil {
		return nil, fmt.Errorf("failed to open cost log: %w", err)
	}

	cl := NewCostLog(f)
	cl.closer = f
	return cl, nil
}

// Record appends a call record.
func (c *CostLog) Record(ctx context.Context, rec CallRecord) {
	if c == nil {
		return
	}

	attrs := []slog.Attr{
		slog.String("model", rec.Model),
		slog.Group("usage",
			slog.Int("input", rec.Usage.Input),
			slog.Int("output", rec.Usage.Output),
			slog.Int("total", rec.Usage.Total)),
		slog.Float64("est_cost", rec.Cost),
		slog.Bool("ok", rec.OK),
	}
	if rec.DemoMode {
		attrs = append(attrs, slog.Bool("demo_mode", true))
	}
	if rec.Err != nil {
		attrs = append(attrs, slog.String("error", rec.Err.Error()))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger.LogAttrs(ctx, slog.LevelInfo, costEvent, attrs...)
}

// Close closes the underlying file when the log owns one.
func (c *CostLog) Close() error {
	if c == nil || c.closer == nil {
		return nil
	}
	return c.closer.Close()
}
