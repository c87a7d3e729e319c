// Package redpanda carries evaluation tasks over a Kafka-compatible broker.
//
// The producer publishes one record per job inside a transaction; the consumer
// reads committed records only and commits offsets after the job handler has
// persisted its outcome.
package redpanda

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
	obsctx "github.com/fairyhunter13/ai-petition-evaluator/internal/observability"
)

// DefaultTransactionalID identifies the API's producer.
const DefaultTransactionalID = "petition-evaluator-producer"

// Producer implements domain.Queue.
type Producer struct {
	client *kgo.Client
	topic  string
	// serializes transactions; a kgo client runs one at a time
	txn chan struct{}
}

func kotelHooks() kgo.Opt {
	tracer := kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))
	return kgo.WithHooks(kotel.NewKotel(kotel.WithTracer(tracer)).Hooks()...)
}

// NewProducer connects a transactional producer and ensures topic exists.
func NewProducer(ctx context.Context, brokers []string, topic, transactionalID string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=redpanda.NewProducer: %w: no seed brokers provided", domain.ErrInvalidArgument)
	}
	if transactionalID == "" {
		transactionalID = DefaultTransactionalID
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.TransactionalID(transactionalID),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1000000),
		kotelHooks(),
	)
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.NewProducer: %w", err)
	}
	if err := ensureTopic(ctx, client, topic, 3, 1); err != nil {
		// the broker may forbid topic creation; producing still works if it exists
		slog.Warn("failed to ensure topic", slog.String("topic", topic), slog.Any("error", err))
	}
	slog.Info("redpanda producer ready", slog.Any("brokers", brokers), slog.String("topic", topic))
	return &Producer{client: client, topic: topic, txn: make(chan struct{}, 1)}, nil
}

// EnqueueEvaluate publishes task and returns the job id as the task id.
func (p *Producer) EnqueueEvaluate(ctx domain.Context, task domain.EvaluateTask) (string, error) {
	rec, err := encodeTask(p.topic, task, obsctx.RequestIDFromContext(ctx))
	if err != nil {
		return "", err
	}

	select {
	case p.txn <- struct{}{}:
		defer func() { <-p.txn }()
	case <-ctx.Done():
		return "", fmt.Errorf("op=redpanda.EnqueueEvaluate: %w", ctx.Err())
	}

	if err := p.client.BeginTransaction(); err != nil {
		return "", fmt.Errorf("op=redpanda.EnqueueEvaluate: begin transaction: %w", err)
	}
	e := kgo.AbortingFirstErrPromise(p.client)
	p.client.Produce(ctx, rec, e.Promise())
	if err := e.Err(); err != nil {
		if abortErr := p.client.EndTransaction(ctx, kgo.TryAbort); abortErr != nil {
			slog.Error("failed to abort transaction", slog.String("job_id", task.JobID), slog.Any("error", abortErr))
		}
		return "", fmt.Errorf("op=redpanda.EnqueueEvaluate: produce: %w", err)
	}
	if err := p.client.EndTransaction(ctx, kgo.TryCommit); err != nil {
		return "", fmt.Errorf("op=redpanda.EnqueueEvaluate: commit transaction: %w", err)
	}

	observability.EnqueueJob("evaluate")
	obsctx.LoggerFromContext(ctx).Info("evaluation enqueued",
		slog.String("job_id", task.JobID),
		slog.String("visa_type", task.VisaType),
		slog.String("topic", p.topic))
	return task.JobID, nil
}

// Ping checks broker connectivity for readiness probes.
func (p *Producer) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx); err != nil {
		return fmt.Errorf("op=redpanda.Ping: %w", err)
	}
	return nil
}

// Close releases the client.
func (p *Producer) Close() {
	if p.client != nil {
		p.client.Close()
	}
}
