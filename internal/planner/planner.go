package planner

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/fleetcore/agentfleet/internal/adapter"
	"github.com/fleetcore/agentfleet/internal/fallback"
	"github.com/fleetcore/agentfleet/internal/guard"
	"github.com/fleetcore/agentfleet/internal/logging"
	"github.com/fleetcore/agentfleet/internal/normalizer"
	"github.com/fleetcore/agentfleet/internal/ratelimit"
	"github.com/fleetcore/agentfleet/internal/subgoal"
	"github.com/fleetcore/agentfleet/internal/worldstate"
)

// Status is the three-way outcome of a Plan call.
type Status string

const (
	StatusSuccess     Status = "SUCCESS"
	StatusRateLimited Status = "RATE_LIMITED"
	StatusFallback    Status = "FALLBACK"
)

// Result is the Planner Service's return value.
type Result struct {
	Status    Status
	Response  Response
	TokensIn  int
	TokensOut int
	Notes     []string
}

// Config bundles the Planner Service's timing/retry knobs, mirroring
// config.PlannerConfig's fields without importing the config package
// directly (the service takes plain values so it stays testable without a
// YAML file on disk).
type Config struct {
	MaxRetries                int
	TimeoutMs                 int64
	FeasibilityRepromptEnabled     bool
	FeasibilityRepromptMaxAttempts int
}

// Service is the Planner Service: prompt build, rate-limited LLM call,
// validate, normalize, guard, bounded repair-reprompt, deterministic
// fallback.
type Service struct {
	llm     adapter.LLMClient
	limiter *ratelimit.Limiter
	guard   *guard.Guard
	fb      *fallback.Planner
	cfg     Config
	base    worldstate.Position

	randMu sync.Mutex
	rng    *rand.Rand
}

// New constructs a Planner Service.
func New(llm adapter.LLMClient, limiter *ratelimit.Limiter, g *guard.Guard, fb *fallback.Planner, cfg Config, base worldstate.Position) *Service {
	return &Service{
		llm:     llm,
		limiter: limiter,
		guard:   g,
		fb:      fb,
		cfg:     cfg,
		base:    base,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Service) jitterMs(attempt int) time.Duration {
	s.randMu.Lock()
	factor := s.rng.Float64()
	s.randMu.Unlock()
	// ~80·(attempt+1) ms jittered to spread retries apart.
	base := 80.0 * float64(attempt+1)
	return time.Duration(base*(0.5+factor)) * time.Millisecond
}

// Plan runs the full Planner Service pipeline for req. The only error it
// returns is a schema error on the request itself (step 1, "fatal to
// caller"); every other internal failure is absorbed into a FALLBACK
// result.
func (s *Service) Plan(ctx context.Context, req Request) (Result, error) {
	timer := logging.StartTimer(logging.CategoryPlanner, "plan")
	defer timer.Stop()

	if err := validateRequest(req); err != nil {
		return Result{}, err
	}

	decision := s.limiter.Consume(req.BotID, ratelimit.NowMs())
	if !decision.Allowed {
		logging.PlannerDebug("rate limited agent=%s reason=%s", req.BotID, decision.Reason)
		fb := s.fb.Plan(req.Snapshot, fmt.Sprintf("RATE_LIMIT_%s", decision.Reason), s.base)
		return Result{
			Status:   StatusRateLimited,
			Response: Response{NextGoal: fb.Reason, Subgoals: fb.Subgoals, RiskFlags: fb.RiskFlags},
		}, nil
	}

	resp, tokensIn, tokensOut, notes, err := s.planWithReprompt(ctx, req)
	if err != nil {
		logging.PlannerWarn("planner error for agent=%s: %v", req.BotID, err)
		fb := s.fb.Plan(req.Snapshot, fmt.Sprintf("PLANNER_ERROR:%s", err.Error()), s.base)
		return Result{
			Status:   StatusFallback,
			Response: Response{NextGoal: fb.Reason, Subgoals: fb.Subgoals, RiskFlags: fb.RiskFlags},
			Notes:    notes,
		}, nil
	}

	return Result{
		Status:    StatusSuccess,
		Response:  resp,
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
		Notes:     notes,
	}, nil
}

// planWithReprompt runs the initial call, parse, normalize, and guard pass,
// then a bounded reprompt loop when the guard materially rewrote the plan.
func (s *Service) planWithReprompt(ctx context.Context, req Request) (Response, int, int, []string, error) {
	var notes []string

	prompt, err := BuildPrompt(req)
	if err != nil {
		return Response{}, 0, 0, notes, err
	}

	completion, err := s.callWithRetries(ctx, prompt)
	if err != nil {
		return Response{}, 0, 0, notes, err
	}
	tokensIn, tokensOut := completion.TokensIn, completion.TokensOut

	resp, normalized, err := s.parseAndNormalize(completion.Text)
	if err != nil {
		return Response{}, tokensIn, tokensOut, notes, err
	}

	guarded := s.guard.Apply(normalized, req.Snapshot)
	notes = append(notes, guarded.Notes...)

	attempts := 0
	prior := normalized
	current := guarded.Subgoals
	for s.cfg.FeasibilityRepromptEnabled && !canonicalEqual(prior, current) && attempts < s.cfg.FeasibilityRepromptMaxAttempts {
		attempts++

		decision := s.limiter.Consume(req.BotID, ratelimit.NowMs())
		if !decision.Allowed {
			notes = append(notes, fmt.Sprintf("feasibility_reprompt_skipped_rate_limited:%s", decision.Reason))
			break
		}

		repairPrompt, err := BuildRepairPrompt(req, prior, current, guarded.Notes)
		if err != nil {
			return Response{}, tokensIn, tokensOut, notes, err
		}

		completion, err = s.callWithRetries(ctx, repairPrompt)
		if err != nil {
			notes = append(notes, fmt.Sprintf("feasibility_reprompt_llm_error:%s", err.Error()))
			break
		}
		tokensIn += completion.TokensIn
		tokensOut += completion.TokensOut

		nextResp, nextNormalized, err := s.parseAndNormalize(completion.Text)
		if err != nil {
			notes = append(notes, fmt.Sprintf("feasibility_reprompt_parse_error:%s", err.Error()))
			break
		}

		nextGuarded := s.guard.Apply(nextNormalized, req.Snapshot)
		notes = append(notes, nextGuarded.Notes...)

		resp = nextResp
		prior = nextNormalized
		current = nextGuarded.Subgoals

		if canonicalEqual(prior, current) {
			notes = append(notes, "feasibility_reprompt_resolved")
		}
	}

	resp.Subgoals = current
	return resp, tokensIn, tokensOut, notes, nil
}

// parseAndNormalize extracts, schema-validates, and normalizes one LLM
// completion's text into a Response plus its normalized subgoal list. An
// empty normalized list after dropping invalid entries is a hard failure.
func (s *Service) parseAndNormalize(text string) (Response, []subgoal.Subgoal, error) {
	resp, err := parseResponse(text)
	if err != nil {
		return Response{}, nil, err
	}
	if err := validateResponse(resp); err != nil {
		return Response{}, nil, err
	}

	normResult := normalizer.Normalize(resp.Subgoals)
	if len(normResult.Subgoals) == 0 {
		return Response{}, nil, fmt.Errorf("planner: normalized plan is empty")
	}
	return resp, normResult.Subgoals, nil
}

// callWithRetries calls the LLM client, retrying up to cfg.MaxRetries times
// on any error with a jittered ~80·(attempt+1)ms delay.
func (s *Service) callWithRetries(ctx context.Context, prompt string) (adapter.Completion, error) {
	var lastErr error
	maxRetries := s.cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	for attempt := 0; attempt <= maxRetries; attempt++ {
		completion, err := s.llm.Generate(ctx, prompt, s.cfg.TimeoutMs)
		if err == nil {
			return completion, nil
		}
		lastErr = err
		if attempt == maxRetries {
			break
		}
		delay := s.jitterMs(attempt)
		select {
		case <-ctx.Done():
			return adapter.Completion{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	return adapter.Completion{}, fmt.Errorf("planner: llm call failed after %d attempts: %w", maxRetries+1, lastErr)
}

// canonicalEqual reports whether two subgoal sequences are equal under
// Subgoal.Equal, element-wise, used to detect whether the guard "materially
// rewrote" a plan.
func canonicalEqual(a, b []subgoal.Subgoal) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
