// Package reward converts a round's per-response outcomes into the
// moving-average score vector submitted on-chain as miner weights.
package reward

import (
	"context"
	"sync"

	"github.com/ubsv-storage/validator-core/chain"
	"github.com/ubsv-storage/validator-core/config"
	"github.com/ubsv-storage/validator-core/errors"
	"github.com/ubsv-storage/validator-core/ulogger"
	"github.com/ubsv-storage/validator-core/util/retry"
)

// ResponseKind classifies one miner's response within a round, matching
// the three raw-reward cases.
type ResponseKind int

const (
	Success ResponseKind = iota
	VerifiedFailure
	NoData
)

// Response is one UID's outcome within a round, before latency
// normalization.
type Response struct {
	UID       int
	Kind      ResponseKind
	LatencyMs float64 // ignored when Kind == NoData
}

func rawReward(kind ResponseKind, tierFactor float64) float64 {
	switch kind {
	case Success:
		return tierFactor
	case VerifiedFailure:
		return -0.1 * tierFactor
	default:
		return 0
	}
}

// minmaxNormalize maps latencies to [0,1], fast=1 slow=0. A round with a
// single response or uniform latencies normalizes to 1 for every entry (no
// spread to penalize).
func minmaxNormalize(latencies map[int]float64) map[int]float64 {
	out := make(map[int]float64, len(latencies))
	if len(latencies) == 0 {
		return out
	}

	min, max := latenciesBounds(latencies)
	spread := max - min
	for uid, l := range latencies {
		if spread <= 0 {
			out[uid] = 1
			continue
		}
		out[uid] = (max - l) / spread
	}
	return out
}

func latenciesBounds(latencies map[int]float64) (min, max float64) {
	first := true
	for _, l := range latencies {
		if first {
			min, max = l, l
			first = false
			continue
		}
		if l < min {
			min = l
		}
		if l > max {
			max = l
		}
	}
	return min, max
}

// RoundRewards computes the elementwise product of raw reward and
// normalized latency score for every responding UID, given each UID's
// tier factor (looked up by the caller from the reputation engine).
func RoundRewards(responses []Response, tierFactor map[int]float64) map[int]float64 {
	latencies := make(map[int]float64)
	for _, r := range responses {
		if r.Kind != NoData {
			latencies[r.UID] = r.LatencyMs
		}
	}
	normalized := minmaxNormalize(latencies)

	out := make(map[int]float64, len(responses))
	for _, r := range responses {
		raw := rawReward(r.Kind, tierFactor[r.UID])
		if r.Kind == NoData {
			out[r.UID] = 0
			continue
		}
		out[r.UID] = raw * normalized[r.UID]
	}
	return out
}

// State is the persisted reward vector plus the bookkeeping needed to decide
// when to submit on-chain weights. Callers are responsible for not folding
// two phases into the score vector concurrently; the mutex only protects
// against concurrent readers and writers of the same phase's update.
type State struct {
	mu sync.Mutex

	scores       []float64 // indexed by UID, length == metagraph.N
	alpha        float64
	decayRate    float64
	blocksPerWt  int
	lastSetBlock int64
}

func NewState(n int, cfg config.RewardSettings) *State {
	return &State{
		scores:      make([]float64, n),
		alpha:       cfg.EMAAlpha,
		decayRate:   cfg.DecayRate,
		blocksPerWt: cfg.BlocksPerWeight,
	}
}

// Scores returns a copy of the current moving-average vector.
func (s *State) Scores() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.scores...)
}

// LoadScores restores a persisted vector, e.g. on process restart.
func (s *State) LoadScores(scores []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores = append([]float64(nil), scores...)
}

// Fold applies one round's rewards: touched UIDs move toward their reward
// by alpha; untouched UIDs decay by (1 - alpha*decayRate) so stale scores
// don't dominate forever.
func (s *State) Fold(rewards map[int]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	decay := 1 - s.alpha*s.decayRate
	for uid := range s.scores {
		if reward, ok := rewards[uid]; ok {
			s.scores[uid] = (1-s.alpha)*s.scores[uid] + s.alpha*reward
		} else {
			s.scores[uid] *= decay
		}
	}
}

// ShouldSetWeights reports whether blocksPerWeight blocks have elapsed
// since the last successful submission.
func (s *State) ShouldSetWeights(currentBlock int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return currentBlock-s.lastSetBlock >= int64(s.blocksPerWt)
}

func normalizeWeights(scores []float64) []float64 {
	var sum float64
	for _, v := range scores {
		if v > 0 {
			sum += v
		}
	}
	out := make([]float64, len(scores))
	if sum <= 0 {
		return out
	}
	for i, v := range scores {
		if v > 0 {
			out[i] = v / sum
		}
	}
	return out
}

// SubmitWeights normalizes the current score vector and submits it via the
// chain client, retrying on failure; on success it advances lastSetBlock
// and returns the vector actually submitted (for event/state persistence).
func SubmitWeights(ctx context.Context, logger ulogger.Logger, client chain.Client, s *State, netuid int, versionKey int64, currentBlock int64) ([]float64, error) {
	s.mu.Lock()
	weights := normalizeWeights(s.scores)
	uids := make([]int, len(weights))
	for i := range uids {
		uids[i] = i
	}
	s.mu.Unlock()

	err := retry.RetryWithLogger(ctx, logger, func() error {
		return client.SetWeights(ctx, uids, weights, netuid, versionKey)
	}, retry.WithMessage("setting weights"), retry.WithRetryCount(3))

	if err != nil {
		return nil, errors.New(errors.ERR_CHAIN_UNAVAILABLE, "submitting weights", err)
	}

	s.mu.Lock()
	s.lastSetBlock = currentBlock
	s.mu.Unlock()

	return weights, nil
}
