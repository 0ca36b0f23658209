package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zen-systems/turnpike/pkg/budget"
	"github.com/zen-systems/turnpike/pkg/compress"
	"github.com/zen-systems/turnpike/pkg/finalize"
	"github.com/zen-systems/turnpike/pkg/gate"
	"github.com/zen-systems/turnpike/pkg/reflection"
	"github.com/zen-systems/turnpike/pkg/router"
	"github.com/zen-systems/turnpike/pkg/telemetry"
	"github.com/zen-systems/turnpike/pkg/tools"
	"github.com/zen-systems/turnpike/pkg/verify"
)

const (
	// toolSharePct is the slice of the finalize prompt budget handed to the
	// tool-result compressor.
	toolSharePct = 40

	// estReplyTokens pads the gate's token estimate with room for the reply.
	estReplyTokens = 512
)

// Run executes one turn. It returns an error only when the context is
// cancelled between stages; everything else degrades inside the stages and
// surfaces in the TurnResult.
func (p *Pipeline) Run(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	turnID := uuid.New().String()
	start := time.Now()
	log := p.log.With().Str("turn_id", turnID).Str("session_id", req.SessionID).Logger()

	res := &TurnResult{TurnID: turnID, SessionID: req.SessionID, Utterance: req.Utterance}
	p.emit(ctx, telemetry.Event{
		TurnID:    turnID,
		SessionID: req.SessionID,
		Type:      telemetry.EventTurnStart,
		Data:      map[string]any{"utterance_chars": len(req.Utterance)},
	})

	// Route.
	stageStart := time.Now()
	decision := p.router.Route(ctx, router.Input{
		Utterance:      req.Utterance,
		DialogSummary:  req.DialogSummary,
		MemoryText:     req.MemoryText,
		SessionContext: req.SessionContext,
	})
	res.Decision = decision
	p.metrics.ObserveStage("router", time.Since(stageStart))
	p.emit(ctx, telemetry.Event{
		TurnID:    turnID,
		SessionID: req.SessionID,
		Type:      telemetry.EventRouterDecision,
		Duration:  time.Since(stageStart),
		Data: map[string]any{
			"route":      decision.Route,
			"intent":     decision.Intent,
			"confidence": decision.Confidence,
			"tools":      len(decision.ToolPlan),
			"fallback":   decision.Fallback,
		},
	})

	if err := p.checkpoint(ctx, res, "verify", start); err != nil {
		return nil, err
	}

	// Verify the tool plan.
	stageStart = time.Now()
	var retrier verify.Retrier
	if p.runtime != nil {
		retrier = verify.RetryViaRuntime(p.runtime, decision.Slots)
	}
	outcome := p.verifier.Run(ctx, decision.ToolPlan, decision.Slots, retrier)
	res.Outcome = outcome
	p.metrics.ObserveStage("verify", time.Since(stageStart))
	for _, tool := range outcome.Tools {
		p.metrics.ToolExecuted(tool.Result.Tool, tool.State == verify.StateOK)
	}
	p.emit(ctx, telemetry.Event{
		TurnID:    turnID,
		SessionID: req.SessionID,
		Type:      telemetry.EventVerifyOutcome,
		Duration:  time.Since(stageStart),
		Data: map[string]any{
			"verified": outcome.Verified,
			"ok":       outcome.ToolsOK,
			"retried":  outcome.ToolsRetried,
			"failed":   outcome.ToolsFailed,
		},
	})

	if err := p.checkpoint(ctx, res, "reflection", start); err != nil {
		return nil, err
	}

	// Reflect, when wired. The engine itself decides whether to trigger.
	if p.reflector != nil {
		stageStart = time.Now()
		verdict := p.reflector.Inspect(ctx, reflection.Turn{
			Utterance:  req.Utterance,
			Confidence: decision.Confidence,
			Results:    invocationResults(outcome),
		})
		res.Verdict = verdict
		p.metrics.ObserveStage("reflection", time.Since(stageStart))
		p.emit(ctx, telemetry.Event{
			TurnID:    turnID,
			SessionID: req.SessionID,
			Type:      telemetry.EventReflectionVerdict,
			Duration:  time.Since(stageStart),
			Data: map[string]any{
				"triggered": verdict.Triggered,
				"satisfied": verdict.Satisfied,
				"cause":     verdict.Cause,
			},
		})

		if err := p.checkpoint(ctx, res, "gate", start); err != nil {
			return nil, err
		}
	}

	// Pick the tier.
	stageStart = time.Now()
	gd := p.gate.Decide(gate.Request{
		Utterance: req.Utterance,
		SlotCount: len(decision.Slots),
		EstTokens: estimateTurnTokens(req),
	})
	res.Gate = gd
	p.metrics.ObserveStage("gate", time.Since(stageStart))
	p.metrics.GateDecided(gd.Tier, gd.Reason)
	p.emit(ctx, telemetry.Event{
		TurnID:    turnID,
		SessionID: req.SessionID,
		Type:      telemetry.EventGateDecision,
		Duration:  time.Since(stageStart),
		Data: map[string]any{
			"tier":   gd.Tier,
			"reason": gd.Reason,
			"score":  gd.Score.Total,
		},
	})

	if err := p.checkpoint(ctx, res, "compress", start); err != nil {
		return nil, err
	}

	// Compress tool output into the tier's prompt budget.
	stageStart = time.Now()
	plan := p.finalizer.Plan(gd.Tier)
	compressed := compress.Compress(invocationResults(outcome), plan.AvailableForPrompt*toolSharePct/100)
	res.Compressed = compressed
	p.metrics.ObserveStage("compress", time.Since(stageStart))
	p.emit(ctx, telemetry.Event{
		TurnID:    turnID,
		SessionID: req.SessionID,
		Type:      telemetry.EventCompressLevel,
		Duration:  time.Since(stageStart),
		Data: map[string]any{
			"level":    compressed.Level,
			"degraded": compressed.Degraded,
			"dropped":  compressed.Dropped,
			"tokens":   compressed.Tokens,
		},
	})

	if err := p.checkpoint(ctx, res, "finalize", start); err != nil {
		return nil, err
	}

	// Finalize. Reply never errors; a quality-tier attempt is recorded
	// against breaker and quota whatever its outcome.
	stageStart = time.Now()
	reply := p.finalizer.Reply(ctx, finalize.Input{
		Utterance:     req.Utterance,
		DraftReply:    decision.Reply,
		DialogSummary: req.DialogSummary,
		Tier:          gd.Tier,
		Tools:         compressed,
	})
	res.Reply = reply
	if gd.Tier == gate.TierQuality {
		p.recordRemote(reply)
	}
	p.metrics.ObserveStage("finalize", time.Since(stageStart))
	p.metrics.LLMFinished(gd.Tier, reply.Model, !reply.Fallback)
	p.metrics.AddLLMTokens(gd.Tier, reply.Model, reply.PromptTokens, reply.CompletionTokens)
	p.emit(ctx, telemetry.Event{
		TurnID:    turnID,
		SessionID: req.SessionID,
		Type:      telemetry.EventFinalizeDone,
		Duration:  time.Since(stageStart),
		Data: map[string]any{
			"tier":     reply.Tier,
			"fallback": reply.Fallback,
			"chars":    len(reply.Text),
		},
	})

	res.Elapsed = time.Since(start)
	p.metrics.TurnFinished(decision.Route, gd.Tier)
	p.emit(ctx, telemetry.Event{
		TurnID:    turnID,
		SessionID: req.SessionID,
		Type:      telemetry.EventTurnEnd,
		Duration:  res.Elapsed,
		Data: map[string]any{
			"route":    decision.Route,
			"tier":     gd.Tier,
			"verified": outcome.Verified,
			"fallback": reply.Fallback,
		},
	})
	log.Info().
		Str("route", decision.Route).
		Str("tier", gd.Tier).
		Bool("verified", outcome.Verified).
		Dur("elapsed", res.Elapsed).
		Msg("turn complete")

	return res, nil
}

// checkpoint aborts the turn when the caller cancelled. Counters touched by
// earlier stages are already settled; the turn.end event records the abort.
func (p *Pipeline) checkpoint(ctx context.Context, res *TurnResult, next string, start time.Time) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	p.emit(context.Background(), telemetry.Event{
		TurnID:    res.TurnID,
		SessionID: res.SessionID,
		Type:      telemetry.EventTurnEnd,
		Duration:  time.Since(start),
		Error:     err.Error(),
	})
	return fmt.Errorf("turn aborted before %s: %w", next, err)
}

// recordRemote settles the breaker and quota after a quality-tier attempt.
func (p *Pipeline) recordRemote(reply finalize.Reply) {
	if breaker := p.gate.Breaker(); breaker != nil {
		if reply.Fallback {
			breaker.RecordFailure()
		} else {
			breaker.RecordSuccess()
		}
	}
	if p.quota != nil {
		p.quota.Commit(1, reply.PromptTokens, reply.CompletionTokens)
	}
}

func (p *Pipeline) emit(ctx context.Context, ev telemetry.Event) {
	if err := p.sink.Record(ctx, ev); err != nil {
		p.log.Warn().Err(err).Str("event", string(ev.Type)).Msg("telemetry record failed")
	}
}

func invocationResults(outcome verify.Outcome) []tools.InvocationResult {
	if len(outcome.Tools) == 0 {
		return nil
	}
	out := make([]tools.InvocationResult, 0, len(outcome.Tools))
	for _, tool := range outcome.Tools {
		out = append(out, tool.Result)
	}
	return out
}

func estimateTurnTokens(req TurnRequest) int {
	return budget.EstimateTokens(req.Utterance) + budget.EstimateTokens(req.DialogSummary) + estReplyTokens
}
