// Package mock provides a scripted llm.Client used for local runs and tests.
package mock

import (
	"context"
	"sync"

	"github.com/aschepis/backscratcher/llmcore/llm"
)

// DefaultText is returned once the script is exhausted.
const DefaultText = "mock response"

// Step is one scripted reply. When Err is set it is returned instead of a response.
type Step struct {
	Text  string
	Usage *llm.Usage
	Err   error
	// Hold, when set, delays the reply until it is closed.
	Hold <-chan struct{}
}

// Client replays Steps in order and records every request it receives.
type Client struct {
	mu       sync.Mutex
	steps    []Step
	requests []*llm.Request
}

// NewClient creates a client that replays steps in order.
func NewClient(steps ...Step) *Client {
	return &Client{steps: steps}
}

// Push appends steps to the script.
func (c *Client) Push(steps ...Step) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = append(c.steps, steps...)
}

// Synchronous implements llm.Client.Synchronous.
func (c *Client) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.requests = append(c.requests, req)
	step := Step{Text: DefaultText}
	if len(c.steps) > 0 {
		step = c.steps[0]
		c.steps = c.steps[1:]
	}
	c.mu.Unlock()

	if step.Hold != nil {
		select {
		case <-step.Hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if step.Err != nil {
		return nil, step.Err
	}

	return &llm.Response{
		Content:    []llm.ContentBlock{{Type: llm.ContentBlockTypeText, Text: step.Text}},
		Usage:      step.Usage,
		StopReason: "stop",
		Model:      req.Model,
		Kind:       llm.ResultKindMock,
	}, nil
}

// Calls returns how many requests the client has served.
func (c *Client) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

// Requests returns a copy of the recorded requests.
func (c *Client) Requests() []*llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*llm.Request, len(c.requests))
	copy(out, c.requests)
	return out
}

var _ llm.Client = (*Client)(nil)
