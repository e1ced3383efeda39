package providers

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aschepis/backscratcher/llmcore/llm"
	"github.com/aschepis/backscratcher/llmcore/llm/mock"
	"github.com/rs/zerolog"
)

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	mw := NewLoggingMiddleware(zerolog.New(&buf))
	boom := llm.NewServiceUnavailableError("down", errors.New("503"))
	client := llm.WrapWithMiddleware(mock.NewClient(
		mock.Step{Text: "ok", Usage: &llm.Usage{InputTokens: 3, OutputTokens: 1}},
		mock.Step{Err: boom},
		mock.Step{Err: llm.FromStatusCode("Mock", 413, "too long", 0, nil)},
	), mw)

	req := &llm.Request{Model: "m"}
	if _, err := client.Synchronous(context.Background(), req); err != nil {
		t.Fatalf("Synchronous: %v", err)
	}
	if !strings.Contains(buf.String(), `"input_tokens":3`) {
		t.Errorf("Expected usage in log, got %s", buf.String())
	}

	_, err := client.Synchronous(context.Background(), &llm.Request{Model: "m"})
	if !errors.Is(err, boom) {
		t.Errorf("Expected error to pass through unchanged, got %v", err)
	}
	if !strings.Contains(buf.String(), `"retryable":true`) {
		t.Errorf("Expected failure log, got %s", buf.String())
	}

	if strings.Contains(buf.String(), `"request_too_large"`) {
		t.Errorf("Only oversized requests should be flagged, got %s", buf.String())
	}

	buf.Reset()
	_, err = client.Synchronous(context.Background(), &llm.Request{Model: "m"})
	if !llm.IsRequestTooLargeError(err) {
		t.Fatalf("Expected request too large error, got %v", err)
	}
	logged := buf.String()
	if !strings.Contains(logged, `"level":"error"`) || !strings.Contains(logged, `"request_too_large":true`) || !strings.Contains(logged, `"retryable":false`) {
		t.Errorf("Expected a fatal oversized request log, got %s", logged)
	}

	if _, pending := mw.started.Load(req); pending {
		t.Error("Start times must be cleared once a call completes")
	}
}
