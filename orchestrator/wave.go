package orchestrator

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ubsv-storage/validator-core/metrics"
	"github.com/ubsv-storage/validator-core/reward"
	"github.com/ubsv-storage/validator-core/selection"
)

// runWave dispatches call against every candidate concurrently under a
// shared per-call timeout and awaits the entire set before returning — no
// early termination on first success, and a panic or error from one peer's
// call must never abort the others. call is expected never to propagate an
// error upward; transport/verification failures are represented as a
// peerOutcome, not a Go error, so the wave aggregates uniformly.
func (o *Orchestrator) runWave(ctx context.Context, candidates []selection.Candidate, timeout time.Duration, call func(ctx context.Context, cand selection.Candidate) peerOutcome) []peerOutcome {
	results := make([]peerOutcome, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	for i, cand := range candidates {
		i, cand := i, cand
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()
			results[i] = safeCall(callCtx, cand, call)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// safeCall recovers a panic from one peer's call so a single misbehaving
// dispatch never takes down the rest of the wave's goroutines.
func safeCall(ctx context.Context, cand selection.Candidate, call func(context.Context, selection.Candidate) peerOutcome) (out peerOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = peerOutcome{UID: cand.UID, Hotkey: cand.Hotkey, Reason: "panic in dispatch"}
		}
	}()
	return call(ctx, cand)
}

// foldOutcomes records reputation updates and prometheus observations for
// one wave's outcomes and returns the reward.Response set C5 needs.
func (o *Orchestrator) foldOutcomes(kind RoundKind, started time.Time, outcomes []peerOutcome) []reward.Response {
	phase := kind.phase()
	taskType := kind.taskType()

	responses := make([]reward.Response, 0, len(outcomes))
	for _, out := range outcomes {
		if !out.NoData {
			o.Reputation.UpdateStatistics(out.Hotkey, taskType, out.Verified, out.LatencyMs, out.Online)
		}
		responses = append(responses, reward.Response{UID: out.UID, Kind: out.responseKind(), LatencyMs: out.LatencyMs})

		metrics.PhaseWaveTotal.WithLabelValues(phase).Inc()
		switch {
		case out.NoData:
			metrics.PhaseWaveNoData.WithLabelValues(phase).Inc()
		case out.Verified:
			metrics.PhaseWaveSuccess.WithLabelValues(phase).Inc()
		default:
			metrics.PhaseWaveFailure.WithLabelValues(phase).Inc()
		}
		if out.Online {
			metrics.ResponseLatency.WithLabelValues(phase).Observe(out.LatencyMs)
		}
	}
	metrics.PhaseWaveDuration.WithLabelValues(phase).Observe(elapsedMillis(started))

	return responses
}

// applyRewards computes this wave's reward vector against the reputation
// engine's current tier factors and folds it into the score state, emitting
// one RewardDistribution observation per touched UID.
func (o *Orchestrator) applyRewards(kind RoundKind, responses []reward.Response) map[int]float64 {
	tierFactor := make(map[int]float64, len(responses))
	for _, r := range responses {
		tierFactor[r.UID] = 1.0
	}
	// Resolve each responding UID's hotkey's tier factor through the
	// reputation engine; candidates already carry their hotkey in the
	// outcome, but reward.RoundRewards only needs the factor by UID.
	for uid := range tierFactor {
		if hotkey, ok := o.uidHotkey[uid]; ok {
			tierFactor[uid] = o.Reputation.GetTierFactor(hotkey)
		}
	}

	rewards := reward.RoundRewards(responses, tierFactor)
	for uid, r := range rewards {
		metrics.RewardDistribution.WithLabelValues(kind.phase()).Observe(r)
		_ = uid
	}
	o.Reward.Fold(rewards)
	return rewards
}
