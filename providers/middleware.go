package providers

import (
	"context"
	"sync"
	"time"

	"github.com/aschepis/backscratcher/llmcore/llm"
	"github.com/rs/zerolog"
)

// LoggingMiddleware logs every provider call with its latency and usage.
type LoggingMiddleware struct {
	logger  zerolog.Logger
	started sync.Map // *llm.Request -> time.Time
	now     func() time.Time
}

// NewLoggingMiddleware creates a new LoggingMiddleware.
func NewLoggingMiddleware(logger zerolog.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{
		logger: logger.With().Str("component", "llmMiddleware").Logger(),
		now:    time.Now,
	}
}

// BeforeRequest implements llm.Middleware.BeforeRequest.
func (m *LoggingMiddleware) BeforeRequest(ctx context.Context, req *llm.Request) (*llm.Request, error) {
	m.started.Store(req, m.now())
	m.logger.Debug().
		Str("model", req.Model).
		Int("messages", len(req.Messages)).
		Bool("json_mode", req.JSONMode).
		Msg("Sending LLM request")
	return req, nil
}

// AfterResponse implements llm.Middleware.AfterResponse.
func (m *LoggingMiddleware) AfterResponse(ctx context.Context, req *llm.Request, resp *llm.Response) (*llm.Response, error) {
	event := m.logger.Info().
		Str("model", req.Model).
		Str("kind", string(resp.Kind)).
		Str("stop_reason", resp.StopReason).
		Dur("latency", m.elapsed(req))
	if resp.Usage != nil {
		event = event.Int64("input_tokens", resp.Usage.InputTokens).Int64("output_tokens", resp.Usage.OutputTokens)
	}
	event.Msg("LLM response received")
	return resp, nil
}

// OnError implements llm.Middleware.OnError.
func (m *LoggingMiddleware) OnError(ctx context.Context, req *llm.Request, err error) error {
	event := m.logger.Warn()
	if llm.IsRequestTooLargeError(err) {
		event = m.logger.Error().Bool("request_too_large", true)
	}
	event.
		Err(err).
		Str("model", req.Model).
		Bool("retryable", llm.IsRetryableError(err)).
		Dur("latency", m.elapsed(req)).
		Msg("LLM request failed")
	return err
}

func (m *LoggingMiddleware) elapsed(req *llm.Request) time.Duration {
	v, ok := m.started.LoadAndDelete(req)
	if !ok {
		return 0
	}
	return m.now().Sub(v.(time.Time))
}

var _ llm.Middleware = (*LoggingMiddleware)(nil)
