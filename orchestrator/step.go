package orchestrator

import (
	"context"

	"github.com/opentracing/opentracing-go"

	"github.com/ubsv-storage/validator-core/chain"
	"github.com/ubsv-storage/validator-core/config"
	"github.com/ubsv-storage/validator-core/errors"
	"github.com/ubsv-storage/validator-core/metrics"
	"github.com/ubsv-storage/validator-core/reputation"
	"github.com/ubsv-storage/validator-core/reward"
	"github.com/ubsv-storage/validator-core/selection"
	"github.com/ubsv-storage/validator-core/stores/metadata"
	"github.com/ubsv-storage/validator-core/transport"
	"github.com/ubsv-storage/validator-core/ulogger"
)

// Orchestrator is the root context record every phase consumes: it holds
// handles to every collaborator component and owns the step counters and
// the current metagraph snapshot. No component holds a handle back to it.
type Orchestrator struct {
	Config     *config.Settings
	Logger     ulogger.Logger
	Chain      chain.Client
	Store      metadata.Store
	Reputation *reputation.Engine
	Reward     *reward.State
	Selector   *selection.Selector
	Transport  transport.MinerClient
	Events     EventSink

	SelfUID       int
	metagraph     chain.Metagraph
	uidHotkey     map[int]string
	step          int64
	lastStepBlock int64
}

func New(cfg *config.Settings, logger ulogger.Logger, chainClient chain.Client, store metadata.Store, rep *reputation.Engine, rewardState *reward.State, sel *selection.Selector, mc transport.MinerClient, events EventSink) *Orchestrator {
	metrics.Init()
	if events == nil {
		events = NopEventSink{}
	}
	return &Orchestrator{
		Config:     cfg,
		Logger:     logger,
		Chain:      chainClient,
		Store:      store,
		Reputation: rep,
		Reward:     rewardState,
		Selector:   sel,
		Transport:  mc,
		Events:     events,
		SelfUID:    -1,
		uidHotkey:  make(map[int]string),
	}
}

func (o *Orchestrator) axonFor(uid int) (string, bool) {
	if uid < 0 || uid >= len(o.metagraph.Axons) {
		return "", false
	}
	axon := o.metagraph.Axons[uid]
	return axon, axon != ""
}

func (o *Orchestrator) emitEvent(task string, outcomes []peerOutcome, rewards map[int]float64) {
	record := buildEventRecord(task, o.step, o.lastStepBlock, outcomes, rewards)
	if err := o.Events.Publish(context.Background(), record); err != nil {
		o.Logger.Warnf("orchestrator: publishing %s event: %v", task, err)
	}
}

// refreshMetagraph re-resolves this validator's dense UID every step, since
// the uid<->hotkey mapping may change across epochs.
func (o *Orchestrator) refreshMetagraph(ctx context.Context) error {
	mg, err := o.Chain.GetMetagraph(ctx, o.Config.NetUID)
	if err != nil {
		return errors.New(errors.ERR_CHAIN_UNAVAILABLE, "fetching metagraph", err)
	}
	o.metagraph = mg

	o.uidHotkey = make(map[int]string, mg.N)
	selfUID := -1
	for uid, hotkey := range mg.Hotkeys {
		o.uidHotkey[uid] = hotkey
		if hotkey == o.Config.SelfHotkey {
			selfUID = uid
		}
	}
	if selfUID == -1 {
		return errors.New(errors.ERR_NOT_REGISTERED, "hotkey %s not found in metagraph for netuid %d", o.Config.SelfHotkey, o.Config.NetUID)
	}
	o.SelfUID = selfUID
	return nil
}

// ShouldRunStep reports whether this validator is due to run a step:
// blocks_per_step blocks must have elapsed, and — unless the round-robin
// gate is disabled — this validator's UID must be the one selected for the
// current window, so duplicate work isn't done across the validator set.
func (o *Orchestrator) ShouldRunStep(currentBlock int64) bool {
	if currentBlock-o.lastStepBlock < int64(o.Config.Neuron.BlocksPerStep) {
		return false
	}
	if !o.Config.Neuron.RoundRobinEnabled {
		return true
	}
	return o.isRoundRobinTurn(currentBlock)
}

func (o *Orchestrator) isRoundRobinTurn(currentBlock int64) bool {
	if o.metagraph.N == 0 || o.SelfUID < 0 {
		return false
	}
	window := currentBlock / int64(o.Config.Neuron.BlocksPerStep)
	turn := int(window % int64(o.metagraph.N))
	return turn == o.SelfUID

}

func isFatal(err error) bool {
	var ue *errors.Error
	return errors.As(err, &ue) && (ue.Code == errors.ERR_NOT_REGISTERED || ue.Code == errors.ERR_CONFIG_INVALID)
}

func (o *Orchestrator) runPhase(ctx context.Context, name string, fn func(context.Context) error) error {
	span, spanCtx := opentracing.StartSpanFromContext(ctx, "orchestrator."+name)
	defer span.Finish()

	if err := fn(spanCtx); err != nil {
		if isFatal(err) {
			return err
		}
		o.Logger.Errorf("%s phase: %v", name, err)
	}
	return nil
}

// RunStep advances one full step: Store, Challenge, Retrieve, Rebalance,
// tier recompute, stats snapshot, then — if due — an on-chain weight
// submission. Only ERR_NOT_REGISTERED and ERR_CONFIG_INVALID abort the
// step early; every other phase failure is logged and the step continues.
func (o *Orchestrator) RunStep(ctx context.Context, currentBlock int64) error {
	if err := o.refreshMetagraph(ctx); err != nil {
		return err
	}

	if err := o.runPhase(ctx, "store", o.RunStoreRound); err != nil {
		return err
	}
	if err := o.runPhase(ctx, "challenge", o.RunChallengeRound); err != nil {
		return err
	}
	if err := o.runPhase(ctx, "retrieve", o.RunRetrieveRound); err != nil {
		return err
	}
	if err := o.runPhase(ctx, "rebalance", o.RunRebalance); err != nil {
		return err
	}

	snapshots := o.Reputation.ComputeAllTiers()
	o.Reputation.CommitTiers(snapshots)
	metrics.TierRecomputeTotal.Inc()
	o.Logger.Infof("step %d: recomputed tiers for %d miners", o.step, len(snapshots))

	if o.Reward.ShouldSetWeights(currentBlock) {
		weights, err := reward.SubmitWeights(ctx, o.Logger, o.Chain, o.Reward, o.Config.NetUID, o.Config.VersionKey, currentBlock)
		if err != nil {
			metrics.WeightsSubmitFailed.Inc()
			o.Logger.Errorf("submitting weights: %v", err)
		} else {
			metrics.WeightsSubmitted.Inc()
			o.Logger.Infof("step %d: submitted %d weights", o.step, len(weights))
		}
	}

	o.step++
	o.lastStepBlock = currentBlock
	return nil
}

// Step returns the number of steps run so far, for state persistence.
func (o *Orchestrator) Step() int64 { return o.step }

// LastStepBlock returns the block height the last step ran at.
func (o *Orchestrator) LastStepBlock() int64 { return o.lastStepBlock }

// RestoreStep seeds the step counter and last-run block from a persisted
// snapshot so a restart does not immediately re-run a step.
func (o *Orchestrator) RestoreStep(step, lastStepBlock int64) {
	o.step = step
	o.lastStepBlock = lastStepBlock
}
