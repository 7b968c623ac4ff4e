// Command validator runs the storage-subnet validator core's main loop: it
// polls the chain for the current block, runs a step when due, and persists
// the reward/step state after each one.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ordishs/gocore"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/ubsv-storage/validator-core/chain"
	"github.com/ubsv-storage/validator-core/config"
	"github.com/ubsv-storage/validator-core/orchestrator"
	"github.com/ubsv-storage/validator-core/reputation"
	"github.com/ubsv-storage/validator-core/reward"
	"github.com/ubsv-storage/validator-core/selection"
	"github.com/ubsv-storage/validator-core/state"
	"github.com/ubsv-storage/validator-core/stores/metadata"
	"github.com/ubsv-storage/validator-core/transport"
	"github.com/ubsv-storage/validator-core/ulogger"
)

const progname = "validator"

func init() {
	gocore.SetInfo(progname, "", "")
	gocore.Log(progname)
}

func main() {
	app := &cli.App{
		Name:  progname,
		Usage: "runs the storage-subnet validator core",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "hotkey", Usage: "override neuron_hotkey", EnvVars: []string{"VALIDATOR_HOTKEY"}},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg := config.Load()
	if hk := c.String("hotkey"); hk != "" {
		cfg.SelfHotkey = hk
	}

	logger := ulogger.New(progname, cfg.Runtime.LogLevel, cfg.Runtime.PrettyLogs)

	if cfg.SelfHotkey == "" {
		return fmt.Errorf("neuron_hotkey is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Infof("shutdown signal received")
		cancel()
	}()

	chainClient := chain.NewGRPCClient(cfg.Chain.Endpoint)
	metaStore := metadata.New(metadata.Options{
		Host: cfg.Database.Host,
		Port: cfg.Database.Port,
		DB:   cfg.Database.Index,
	}, logger.New("metadata"))

	mg, err := chainClient.GetMetagraph(ctx, cfg.NetUID)
	if err != nil {
		return fmt.Errorf("fetching initial metagraph: %w", err)
	}

	rep := reputation.New(reputation.DefaultConfig())
	rewardState := reward.NewState(mg.N, cfg.Reward)
	sel := selection.New(metaStore, cfg.Neuron.CapacityBytes, rand.New(rand.NewSource(time.Now().UnixNano())))
	rpcClient := transport.NewGRPCClient()

	var events orchestrator.EventSink
	if len(cfg.Events.KafkaBrokers) > 0 {
		sink, err := orchestrator.NewKafkaSink(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic)
		if err != nil {
			logger.Warnf("kafka event sink unavailable, falling back to no-op: %v", err)
		} else {
			events = sink
		}
	}

	o := orchestrator.New(cfg, logger.New("orchestrator"), chainClient, metaStore, rep, rewardState, sel, rpcClient, events)

	stateStore := state.New(cfg.Runtime.StatePath)
	snap, err := stateStore.Load()
	if err != nil {
		logger.Warnf("loading persisted state from %s: %v; starting fresh", cfg.Runtime.StatePath, err)
	} else if len(snap.MovingAveragedScores) > 0 {
		rewardState.LoadScores(snap.MovingAveragedScores)
		o.RestoreStep(snap.Step, snap.PrevStepBlock)
		logger.Infof("restored state: step=%d prev_step_block=%d", snap.Step, snap.PrevStepBlock)
	}

	serveMetrics(logger, cfg.Runtime.MetricsAddr)

	return mainLoop(ctx, logger, cfg, o, chainClient, stateStore, rewardState)
}

func serveMetrics(logger ulogger.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("metrics server: %v", err)
		}
	}()
	logger.Infof("metrics listening on %s/metrics", addr)
}

// mainLoop polls the chain for the current block and, once it's this
// validator's turn, runs one step and persists state. A blocked chain RPC
// or an in-flight step never stops the loop from responding to ctx
// cancellation: poll ticks are the only suspension point between steps.
func mainLoop(ctx context.Context, logger ulogger.Logger, cfg *config.Settings, o *orchestrator.Orchestrator, chainClient chain.Client, stateStore *state.Store, rewardState *reward.State) error {
	ticker := time.NewTicker(cfg.Runtime.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Infof("main loop exiting")
			return nil
		case <-ticker.C:
			block, err := chainClient.GetCurrentBlock(ctx)
			if err != nil {
				logger.Errorf("fetching current block: %v", err)
				continue
			}

			if !o.ShouldRunStep(block) {
				continue
			}

			if err := o.RunStep(ctx, block); err != nil {
				logger.Errorf("step failed fatally: %v", err)
				return err
			}

			snap := state.Snapshot{
				MovingAveragedScores: rewardState.Scores(),
				Step:                 o.Step(),
				PrevStepBlock:        o.LastStepBlock(),
			}
			if err := stateStore.Save(snap); err != nil {
				logger.Errorf("persisting state: %v", err)
			}
		}
	}
}
