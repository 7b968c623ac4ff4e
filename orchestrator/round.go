// Package orchestrator drives the validator's main step loop: Store,
// Challenge, Retrieve, Rebalance, tier recompute, and stats snapshot, in
// that order, each phase's writes visible to the next before it starts.
package orchestrator

import (
	"time"

	"github.com/ubsv-storage/validator-core/reputation"
	"github.com/ubsv-storage/validator-core/reward"
)

// RoundKind tags which of the three peer-facing rounds a wave belongs to.
// Store, Challenge, and Retrieve share one fan-out skeleton; RoundKind (plus
// the phase string it carries) is what a wave looks up for its phase label
// and task type; each round passes its own dispatch function to the wave.
type RoundKind int

const (
	KindStore RoundKind = iota
	KindChallenge
	KindRetrieve
)

func (k RoundKind) phase() string {
	switch k {
	case KindStore:
		return "store"
	case KindChallenge:
		return "challenge"
	case KindRetrieve:
		return "retrieve"
	default:
		return "unknown"
	}
}

func (k RoundKind) taskType() reputation.TaskType {
	switch k {
	case KindStore:
		return reputation.TaskStore
	case KindChallenge:
		return reputation.TaskChallenge
	case KindRetrieve:
		return reputation.TaskRetrieve
	default:
		return reputation.TaskStore
	}
}

// peerOutcome is one candidate's result within a wave, before it is folded
// into reputation updates and a reward.Response.
type peerOutcome struct {
	UID       int
	Hotkey    string
	Verified  bool
	NoData    bool
	Reason    string
	LatencyMs float64
	Online    bool // false only on a transport timeout/error: no response at all
}

func (o peerOutcome) responseKind() reward.ResponseKind {
	switch {
	case o.NoData:
		return reward.NoData
	case o.Verified:
		return reward.Success
	default:
		return reward.VerifiedFailure
	}
}

func elapsedMillis(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
