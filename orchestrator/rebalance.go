package orchestrator

import (
	"context"
	"encoding/base64"

	"github.com/ubsv-storage/validator-core/metrics"
	"github.com/ubsv-storage/validator-core/reputation"
	"github.com/ubsv-storage/validator-core/selection"
)

// RunRebalance migrates one blob off each of rebalance_k source miners onto
// a fresh destination, reusing the Store and Retrieve round primitives
// directly rather than duplicating their wire-level logic. A source whose
// retrieve fails is penalized and its blob flagged at-risk; the blob is not
// migrated this round, and markRetrieveFailure drops the source from the
// blob's replication set once its failures reach consecutiveFailThreshold.
func (o *Orchestrator) RunRebalance(ctx context.Context) error {
	cfg := o.Config.Neuron
	if cfg.RebalanceK <= 0 {
		return nil
	}

	sources, err := o.Selector.GetAvailableQueryMiners(ctx, o.metagraph, o.SelfUID, selection.ForRetrieve, cfg.RebalanceK)
	if err != nil {
		return err
	}

	for _, source := range sources {
		o.migrateOneBlob(ctx, source)
	}
	return nil
}

func (o *Orchestrator) migrateOneBlob(ctx context.Context, source selection.Candidate) {
	dataHash, ok := o.pickHeldBlob(ctx, source.Hotkey)
	if !ok {
		return
	}

	meta, err := o.Store.GetMetadata(ctx, source.Hotkey, dataHash)
	if err != nil || meta == nil {
		return
	}

	outcome, blob, ok := o.retrieveFrom(ctx, source, dataHash)
	o.Reputation.UpdateStatistics(source.Hotkey, reputation.TaskRetrieve, outcome.Verified, outcome.LatencyMs, outcome.Online)

	if !ok {
		metrics.RebalanceMigrations.WithLabelValues("retrieve_failed").Inc()
		return
	}

	candidates, err := o.Selector.GetAvailableQueryMiners(ctx, o.metagraph, o.SelfUID, selection.ForStore, 2)
	if err != nil || len(candidates) == 0 {
		metrics.RebalanceMigrations.WithLabelValues("no_destination").Inc()
		return
	}
	dest := candidates[0]
	if dest.UID == source.UID && len(candidates) > 1 {
		dest = candidates[1]
	}
	if dest.UID == source.UID {
		metrics.RebalanceMigrations.WithLabelValues("no_destination").Inc()
		return
	}

	destOutcome := o.dispatchStore(ctx, dest, base64.StdEncoding.EncodeToString(blob), dataHash, meta.EncryptionPayload, len(blob))
	o.Reputation.UpdateStatistics(dest.Hotkey, reputation.TaskStore, destOutcome.Verified, destOutcome.LatencyMs, destOutcome.Online)

	if !destOutcome.Verified {
		metrics.RebalanceMigrations.WithLabelValues("store_failed").Inc()
		return
	}

	o.replaceHolder(ctx, dataHash, source.Hotkey, dest.Hotkey)

	if err := o.Store.DeleteMetadata(ctx, source.Hotkey, dataHash); err != nil {
		o.Logger.Errorf("rebalance: pruning old association %s/%s: %v", source.Hotkey, dataHash, err)
	}
	metrics.RebalanceMigrations.WithLabelValues("migrated").Inc()
}
