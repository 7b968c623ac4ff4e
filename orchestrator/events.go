package orchestrator

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
)

// ResponseRecord is one UID's contribution to a phase's event record.
type ResponseRecord struct {
	UID       int     `json:"uid"`
	Hotkey    string  `json:"hotkey"`
	Success   bool    `json:"success"`
	LatencyMs float64 `json:"latency_ms"`
	Reward    float64 `json:"reward"`
}

// EventRecord is the per-phase structured log pushed to the event sink; it
// is observability only and never affects correctness.
type EventRecord struct {
	Task           string           `json:"task"`
	Step           int64            `json:"step"`
	Block          int64            `json:"block"`
	Responses      []ResponseRecord `json:"responses"`
	BestUID        int              `json:"best_uid"`
	StepDurationMs float64          `json:"step_duration_ms"`
}

// EventSink is where the orchestrator publishes one EventRecord per phase.
type EventSink interface {
	Publish(ctx context.Context, event EventRecord) error
}

// NopEventSink discards every event; used when no Kafka broker is
// configured.
type NopEventSink struct{}

func (NopEventSink) Publish(context.Context, EventRecord) error { return nil }

// KafkaSink publishes one JSON-encoded EventRecord per phase to a single
// topic, replacing the wandb-style logging of the source this was
// distilled from with the teacher's own telemetry transport.
type KafkaSink struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Return.Successes = true
	cfg.Producer.Retry.Max = 3

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return &KafkaSink{producer: producer, topic: topic}, nil
}

func (k *KafkaSink) Publish(_ context.Context, event EventRecord) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, _, err = k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(event.Task),
		Value: sarama.ByteEncoder(raw),
	})
	return err
}

func (k *KafkaSink) Close() error { return k.producer.Close() }

// buildEventRecord assembles one phase's record from its reward responses,
// looking up each UID's hotkey and latency from the outcome set already
// folded via foldOutcomes.
func buildEventRecord(task string, step, block int64, outcomes []peerOutcome, rewards map[int]float64) EventRecord {
	responses := make([]ResponseRecord, 0, len(outcomes))
	best := -1
	var bestLatency float64
	for _, out := range outcomes {
		responses = append(responses, ResponseRecord{
			UID:       out.UID,
			Hotkey:    out.Hotkey,
			Success:   out.Verified,
			LatencyMs: out.LatencyMs,
			Reward:    rewards[out.UID],
		})
		if out.Verified && (best == -1 || out.LatencyMs < bestLatency) {
			best = out.UID
			bestLatency = out.LatencyMs
		}
	}
	return EventRecord{Task: task, Step: step, Block: block, Responses: responses, BestUID: best}
}
