// Package orchestrator turns an application-level "send this conversation to
// a model" request into one cost-bounded, cacheable, rate-limited call with
// retries and JSON repair.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aschepis/backscratcher/llmcore/cache"
	"github.com/aschepis/backscratcher/llmcore/extract"
	"github.com/aschepis/backscratcher/llmcore/llm"
	"github.com/aschepis/backscratcher/llmcore/pricing"
	"github.com/aschepis/backscratcher/llmcore/providers"
	"github.com/aschepis/backscratcher/llmcore/quota"
	"github.com/aschepis/backscratcher/llmcore/ratelimit"
	"github.com/aschepis/backscratcher/llmcore/technology"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

var (
	// ErrRetriesExhausted is returned when rate-limit waits and JSON retries
	// use up the retry budget.
	ErrRetriesExhausted = errors.New("llm request retries exhausted")
	// ErrTechnologyNotFound is returned when the technology reference does not resolve.
	ErrTechnologyNotFound = errors.New("technology not found")
)

// TechnologyResolver looks technologies up by ID or variant name.
type TechnologyResolver interface {
	Resolve(ctx context.Context, ref string) (*technology.Technology, error)
}

// Deps are the collaborators of an Orchestrator. Cache, Limiter and Ledger
// are optional; a nil one disables that step.
type Deps struct {
	Technologies TechnologyResolver
	Gateway      *providers.Gateway
	Pricing      pricing.Table
	Cache        *cache.Cache
	Limiter      *ratelimit.Limiter
	Ledger       *quota.Ledger
}

// Orchestrator runs LLM requests. It is safe for concurrent use; every
// invocation keeps its own retry counters.
type Orchestrator struct {
	deps             Deps
	resource         string
	maxRetries       int
	unavailableDelay time.Duration
	sleep            Sleeper
	logger           zerolog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxRetries sets the shared retry budget.
func WithMaxRetries(n int) Option {
	return func(o *Orchestrator) { o.maxRetries = n }
}

// WithServiceUnavailableDelay sets the fixed wait after a 503.
func WithServiceUnavailableDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.unavailableDelay = d }
}

// WithResource sets the quota and pricing resource name.
func WithResource(resource string) Option {
	return func(o *Orchestrator) { o.resource = resource }
}

// WithSleeper replaces the retry sleep.
func WithSleeper(s Sleeper) Option {
	return func(o *Orchestrator) { o.sleep = s }
}

// New creates an Orchestrator.
func New(deps Deps, logger zerolog.Logger, opts ...Option) (*Orchestrator, error) {
	if deps.Technologies == nil {
		return nil, fmt.Errorf("technology resolver is required")
	}
	if deps.Gateway == nil {
		return nil, fmt.Errorf("provider gateway is required")
	}
	o := &Orchestrator{
		deps:             deps,
		resource:         pricing.ResourceChat,
		maxRetries:       DefaultMaxRetries,
		unavailableDelay: DefaultServiceUnavailableDelay,
		sleep:            waitForRetry,
		logger:           logger.With().Str("component", "orchestrator").Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.maxRetries <= 0 {
		return nil, fmt.Errorf("max retries must be positive")
	}
	return o, nil
}

// LLMRequest sends req to its technology. Rate limiting, insufficient quota
// and disabled outbound calls are reported as a Result with Status false.
// Configuration problems and an exhausted retry budget are errors.
func (o *Orchestrator) LLMRequest(ctx context.Context, req Request) (*Result, error) {
	tech, err := o.deps.Technologies.Resolve(ctx, req.TechRef)
	if err != nil {
		if errors.Is(err, technology.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrTechnologyNotFound, err)
		}
		return nil, fmt.Errorf("resolve technology %q: %w", req.TechRef, err)
	}

	log := o.logger.With().
		Str("tech_id", tech.ID).
		Str("user_id", req.UserID).
		Str("conversation_id", req.ConversationID).
		Bool("json_mode", req.JSONMode).
		Logger()

	prepared := o.deps.Gateway.Prepare(tech, req.Agent, req.SystemPrompt, req.Messages, req.Anonymize)

	// JSON output is only trusted after validation, so it never touches the cache.
	var lookup *cache.Lookup
	if req.TryCache && !req.JSONMode && o.deps.Cache != nil {
		lookup, err = o.deps.Cache.TryGet(ctx, tech.ID, prepared.Conversation(), false)
		if err != nil {
			log.Warn().Err(err).Msg("Cache lookup failed, continuing without cache")
			lookup = nil
		} else if lookup.Entry != nil {
			log.Debug().Str("cache_key", lookup.CacheKey).Msg("Cache hit")
			return cachedResult(tech, lookup), nil
		}
	}

	if o.deps.Limiter != nil {
		status, err := o.deps.Limiter.IsRateLimited(ctx, tech)
		if err != nil {
			return nil, err
		}
		if status != nil && status.IsRateLimited {
			log.Info().Int("wait_seconds", status.WaitSeconds).Msg("Technology is rate limited")
			return &Result{
				Outcome:          OutcomeRateLimited,
				Message:          fmt.Sprintf("Rate limit reached, try again in %d seconds.", status.WaitSeconds),
				IsRateLimited:    true,
				WaitSeconds:      status.WaitSeconds,
				RateLimitedAPIID: status.RateLimitedAPIID,
			}, nil
		}
	}

	var reservation *quota.Reservation
	if !tech.IsFree() {
		estimate, err := o.deps.Pricing.CalcCostInCents(tech, o.resource, prepared.EstimatedInputTokens, prepared.EstimatedOutputTokens)
		if err != nil {
			return nil, err
		}
		if o.deps.Ledger != nil && req.UserID != "" {
			res, state, ok, err := o.deps.Ledger.Reserve(ctx, req.UserID, o.resource, estimate)
			if err != nil {
				return nil, err
			}
			if !ok {
				return &Result{
					Outcome: OutcomeInsufficientQuota,
					Message: fmt.Sprintf("Insufficient quota: %.2f cents remaining, about %.2f cents required.", state.Remaining(), estimate),
				}, nil
			}
			reservation = res
		}
	}

	out, err := o.send(ctx, log, tech, prepared, req)

	// Settlement must survive a cancelled request context.
	settleCtx := context.WithoutCancel(ctx)
	var cost float64
	if out != nil && out.usage.HasUsage() && !tech.IsFree() {
		var costErr error
		cost, costErr = o.deps.Pricing.CalcCostInCents(tech, o.resource, out.usage.InputTokens, out.usage.OutputTokens)
		if costErr != nil && err == nil {
			err = costErr
		}
	}
	if reservation != nil {
		if cost > 0 {
			if commitErr := reservation.Commit(settleCtx, cost); commitErr != nil {
				log.Error().Err(commitErr).Msg("Failed to commit quota usage")
			}
		} else if releaseErr := reservation.Release(settleCtx); releaseErr != nil {
			log.Error().Err(releaseErr).Msg("Failed to release quota reservation")
		}
	}

	if err != nil {
		return nil, err
	}
	if out.skipped {
		return &Result{
			Outcome: OutcomeSkipped,
			Message: "Outbound LLM calls are disabled, try again later.",
		}, nil
	}

	result := &Result{
		Status:       true,
		Outcome:      OutcomeSuccess,
		Messages:     out.texts,
		JSON:         out.json,
		Model:        out.model,
		Kind:         out.kind,
		InputTokens:  out.usage.InputTokens,
		OutputTokens: out.usage.OutputTokens,
		CostInCents:  cost,
		Attempts:     out.sends,
	}

	if lookup != nil {
		result.CacheKey = lookup.CacheKey
		saveErr := o.deps.Cache.Save(ctx, cache.SaveParams{
			TechID:         tech.ID,
			CacheKey:       lookup.CacheKey,
			InputText:      lookup.InputText,
			OutputText:     strings.Join(out.texts, "\n"),
			OutputMessages: out.texts,
		})
		if saveErr != nil {
			log.Warn().Err(saveErr).Msg("Failed to save cache entry")
		}
	}

	log.Info().
		Int("sends", out.sends).
		Int64("input_tokens", result.InputTokens).
		Int64("output_tokens", result.OutputTokens).
		Float64("cost_in_cents", cost).
		Msg("LLM request completed")
	return result, nil
}

// sendOutcome accumulates provider usage across attempts.
type sendOutcome struct {
	skipped bool
	texts   []string
	json    any
	model   string
	kind    llm.ResultKind
	usage   llm.Usage
	sends   int
}

// send runs the retry loop. The returned outcome is non-nil whenever at least
// one call reached the provider, so spent tokens can be charged even when err
// is set.
func (o *Orchestrator) send(ctx context.Context, log zerolog.Logger, tech *technology.Technology, prepared *providers.Prepared, req Request) (*sendOutcome, error) {
	out := &sendOutcome{}
	retry := newRetryState(ctx, o.maxRetries, o.unavailableDelay)

	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		if o.deps.Gateway.OutboundDisabled() {
			out.skipped = true
			return out, nil
		}
		admitted, err := o.admit(ctx, log, tech, retry)
		if err != nil {
			return out, err
		}
		if !admitted {
			continue
		}

		resp, err := o.deps.Gateway.Send(ctx, tech, prepared, req.JSONMode)
		if resp == nil && err == nil {
			out.skipped = true
			return out, nil
		}
		out.sends++

		if err != nil {
			switch {
			case llm.IsServiceUnavailableError(err):
				delay := retry.nextUnavailableDelay()
				if delay == backoff.Stop {
					return out, ctx.Err()
				}
				log.Warn().Err(err).Dur("delay", delay).Msg("Provider unavailable, retrying")
				if err := o.sleep(ctx, delay); err != nil {
					return out, err
				}
				continue

			case llm.IsRateLimitError(err):
				if !retry.consume() {
					return out, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, retry.attempts, err)
				}
				delay := llm.DefaultRetryAfter
				if ra := llm.ExtractRetryAfter(err); ra != nil {
					delay = *ra
				}
				log.Warn().Err(err).Dur("delay", delay).Int("attempt", retry.attempts).Msg("Provider rate limited, retrying")
				if err := o.sleep(ctx, delay); err != nil {
					return out, err
				}
				continue

			default:
				return out, fmt.Errorf("send to %s: %w", tech.ID, err)
			}
		}

		out.usage.InputTokens += resp.Usage.InputTokens
		out.usage.OutputTokens += resp.Usage.OutputTokens
		out.texts = resp.Texts()
		out.model = resp.Model
		out.kind = resp.Kind

		if !req.JSONMode {
			return out, nil
		}

		value, _, parseErr := extract.ParseJSON(strings.Join(out.texts, "\n"), extract.Options{RequireArray: req.RequireArray})
		if parseErr == nil {
			out.json = value
			return out, nil
		}
		if !retry.consume() {
			return out, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, retry.attempts, parseErr)
		}
		log.Warn().Err(parseErr).Int("attempt", retry.attempts).Msg("Unparsable JSON output, retrying")
	}
}

// admit takes a rate-limit slot for the next send. When the technology is at
// its ceiling one unit of the retry budget is spent waiting for the window.
func (o *Orchestrator) admit(ctx context.Context, log zerolog.Logger, tech *technology.Technology, retry *retryState) (bool, error) {
	if o.deps.Limiter == nil {
		return true, nil
	}
	status, err := o.deps.Limiter.Admit(ctx, tech)
	if err != nil {
		return false, err
	}
	if status == nil || !status.IsRateLimited {
		return true, nil
	}
	if !retry.consume() {
		return false, fmt.Errorf("%w after %d attempts: %s rate limited for %d seconds",
			ErrRetriesExhausted, retry.attempts, status.RateLimitedAPIID, status.WaitSeconds)
	}
	log.Info().Int("wait_seconds", status.WaitSeconds).Int("attempt", retry.attempts).Msg("Rate limit reached, waiting")
	return false, o.sleep(ctx, time.Duration(status.WaitSeconds)*time.Second)
}

func cachedResult(tech *technology.Technology, lookup *cache.Lookup) *Result {
	entry := lookup.Entry
	messages := entry.OutputMessages
	if len(messages) == 0 && entry.OutputText != "" {
		messages = []string{entry.OutputText}
	}
	result := &Result{
		Status:    true,
		Outcome:   OutcomeSuccess,
		Messages:  messages,
		Model:     tech.Model,
		FromCache: true,
		CacheKey:  lookup.CacheKey,
	}
	if len(entry.OutputJSON) > 0 {
		var value any
		if err := json.Unmarshal(entry.OutputJSON, &value); err == nil {
			result.JSON = value
		}
	}
	return result
}
