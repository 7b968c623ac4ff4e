// Package config binds the validator's configuration surface onto
// github.com/ordishs/gocore's key/value config store.
package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/ordishs/gocore"
)

// getFloat reads a float config value; gocore has no native float getter.
func getFloat(key string, def float64) float64 {
	raw, _ := gocore.Config().Get(key, strconv.FormatFloat(def, 'f', -1, 64))
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}

// NeuronSettings holds the "neuron.*" config surface.
type NeuronSettings struct {
	Device                string
	Curve                 string
	StoreTimeout          time.Duration
	ChallengeTimeout      time.Duration
	RetrieveTimeout       time.Duration
	StoreRedundancy       int
	ChallengeSampleSize   int
	MinChunkSize          int
	ChunkFactor           int
	BlocksPerStep         int
	DataTTL               int
	OverrideChunkSize     int
	RoundRobinEnabled     bool
	NumConcurrentForwards int
	RebalanceK            int
	CapacityBytes         int64
	Verbose               bool
}

// DatabaseSettings holds the "database.*" config surface.
type DatabaseSettings struct {
	Host  string
	Port  int
	Index int
}

// RewardSettings configures the reward aggregator (C5).
type RewardSettings struct {
	EMAAlpha        float64
	DecayRate       float64
	BlocksPerWeight int
}

// ChainSettings holds the "chain.*" config surface: where to reach the
// external chain RPC fabric this core never implements itself.
type ChainSettings struct {
	Endpoint string
}

// EventSettings holds the "events.*" config surface for the Kafka sink.
type EventSettings struct {
	KafkaBrokers []string
	KafkaTopic   string
}

// RuntimeSettings holds process-level surface: where state persists, what
// port serves /health and /metrics, and how often the main loop polls the
// chain for the current block.
type RuntimeSettings struct {
	StatePath    string
	MetricsAddr  string
	PollInterval time.Duration
	PrettyLogs   bool
	LogLevel     string
}

// Settings is the full config surface consumed by the validator core.
type Settings struct {
	NetUID     int
	SelfHotkey string
	VersionKey int64
	Neuron     NeuronSettings
	Database   DatabaseSettings
	Reward     RewardSettings
	Chain      ChainSettings
	Events     EventSettings
	Runtime    RuntimeSettings
}

// Load reads every field from gocore's global config store via a typed
// getter plus an explicit default.
func Load() *Settings {
	cfg := gocore.Config()

	storeTimeoutMs, _ := cfg.GetInt("neuron_store_timeout_ms", 60_000)
	challengeTimeoutMs, _ := cfg.GetInt("neuron_challenge_timeout_ms", 20_000)
	retrieveTimeoutMs, _ := cfg.GetInt("neuron_retrieve_timeout_ms", 30_000)

	netuid, _ := cfg.GetInt("netuid", 1)
	storeRedundancy, _ := cfg.GetInt("neuron_store_redundancy", 3)
	challengeSampleSize, _ := cfg.GetInt("neuron_challenge_sample_size", 10)
	minChunkSize, _ := cfg.GetInt("neuron_min_chunk_size", 2048)
	chunkFactor, _ := cfg.GetInt("neuron_chunk_factor", 4)
	blocksPerStep, _ := cfg.GetInt("neuron_blocks_per_step", 2)
	dataTTL, _ := cfg.GetInt("neuron_data_ttl", 0)
	overrideChunkSize, _ := cfg.GetInt("neuron_override_chunk_size", 0)
	numConcurrentForwards, _ := cfg.GetInt("neuron_num_concurrent_forwards", 1)
	rebalanceK, _ := cfg.GetInt("neuron_rebalance_k", 3)
	capacityBytes, _ := cfg.GetInt("neuron_capacity_bytes", 10*1024*1024*1024)

	dbHost, _ := cfg.Get("database_host", "localhost")
	neuronDevice, _ := cfg.Get("neuron_device", "cpu")
	neuronCurve, _ := cfg.Get("neuron_curve", "P-256")
	selfHotkey, _ := cfg.Get("neuron_hotkey", "")
	dbPort, _ := cfg.GetInt("database_port", 6379)
	dbIndex, _ := cfg.GetInt("database_index", 0)

	blocksPerWeight, _ := cfg.GetInt("reward_blocks_per_weight", 100)
	versionKey, _ := cfg.GetInt("neuron_version_key", 1)

	chainEndpoint, _ := cfg.Get("chain_endpoint", "localhost:9944")
	kafkaBrokersRaw, _ := cfg.Get("events_kafka_brokers", "")
	kafkaTopic, _ := cfg.Get("events_kafka_topic", "validator.events")
	var kafkaBrokers []string
	if kafkaBrokersRaw != "" {
		kafkaBrokers = strings.Split(kafkaBrokersRaw, ",")
	}

	statePath, _ := cfg.Get("runtime_state_path", "./validator-state.json")
	metricsAddr, _ := cfg.Get("runtime_metrics_addr", ":9090")
	pollIntervalMs, _ := cfg.GetInt("runtime_poll_interval_ms", 12_000)
	logLevel, _ := cfg.Get("log_level", "info")

	return &Settings{
		NetUID:     netuid,
		SelfHotkey: selfHotkey,
		VersionKey: int64(versionKey),
		Neuron: NeuronSettings{
			Device:                neuronDevice,
			Curve:                 neuronCurve,
			StoreTimeout:          time.Duration(storeTimeoutMs) * time.Millisecond,
			ChallengeTimeout:      time.Duration(challengeTimeoutMs) * time.Millisecond,
			RetrieveTimeout:       time.Duration(retrieveTimeoutMs) * time.Millisecond,
			StoreRedundancy:       storeRedundancy,
			ChallengeSampleSize:   challengeSampleSize,
			MinChunkSize:          minChunkSize,
			ChunkFactor:           chunkFactor,
			BlocksPerStep:         blocksPerStep,
			DataTTL:               dataTTL,
			OverrideChunkSize:     overrideChunkSize,
			RoundRobinEnabled:     cfg.GetBool("neuron_round_robin_enabled", true),
			NumConcurrentForwards: numConcurrentForwards,
			RebalanceK:            rebalanceK,
			CapacityBytes:         int64(capacityBytes),
			Verbose:               cfg.GetBool("neuron_verbose", false),
		},
		Database: DatabaseSettings{
			Host:  dbHost,
			Port:  dbPort,
			Index: dbIndex,
		},
		Reward: RewardSettings{
			EMAAlpha:        getFloat("reward_ema_alpha", 0.05),
			DecayRate:       getFloat("reward_decay_rate", 0.1),
			BlocksPerWeight: blocksPerWeight,
		},
		Chain: ChainSettings{
			Endpoint: chainEndpoint,
		},
		Events: EventSettings{
			KafkaBrokers: kafkaBrokers,
			KafkaTopic:   kafkaTopic,
		},
		Runtime: RuntimeSettings{
			StatePath:    statePath,
			MetricsAddr:  metricsAddr,
			PollInterval: time.Duration(pollIntervalMs) * time.Millisecond,
			PrettyLogs:   cfg.GetBool("pretty_logs", true),
			LogLevel:     logLevel,
		},
	}
}
