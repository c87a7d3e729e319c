package redpanda

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
	obsctx "github.com/fairyhunter13/ai-petition-evaluator/internal/observability"
)

// TaskHandler processes one evaluation task. It owns the job's persisted
// state; a returned error has already been recorded on the job.
type TaskHandler func(ctx context.Context, task domain.EvaluateTask) error

// Consumer reads committed evaluation records and runs them through a TaskHandler.
type Consumer struct {
	client         *kgo.Client
	handle         TaskHandler
	maxConcurrency int
	topic          string
	groupID        string
}

// NewConsumer joins groupID on topic. Offsets are committed manually once a
// polled batch has been handled.
func NewConsumer(ctx context.Context, brokers []string, groupID, topic string, maxConcurrency int, handle TaskHandler) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=redpanda.NewConsumer: %w: no seed brokers provided", domain.ErrInvalidArgument)
	}
	if groupID == "" {
		return nil, fmt.Errorf("op=redpanda.NewConsumer: %w: missing group id", domain.ErrInvalidArgument)
	}
	if handle == nil {
		return nil, fmt.Errorf("op=redpanda.NewConsumer: %w: nil handler", domain.ErrInvalidArgument)
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topic),
		kgo.FetchIsolationLevel(kgo.ReadCommitted()),
		kgo.DisableAutoCommit(),
		kgo.BlockRebalanceOnPoll(),
		kgo.MaxPollRecords(maxConcurrency*2),
		kgo.SessionTimeout(30*time.Second),
		kgo.HeartbeatInterval(3*time.Second),
		kgo.RebalanceTimeout(10*time.Minute),
		kotelHooks(),
	)
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.NewConsumer: %w", err)
	}
	if err := ensureTopic(ctx, client, topic, 3, 1); err != nil {
		slog.Warn("failed to ensure topic", slog.String("topic", topic), slog.Any("error", err))
	}
	slog.Info("redpanda consumer ready",
		slog.String("group_id", groupID),
		slog.String("topic", topic),
		slog.Int("max_concurrency", maxConcurrency))
	return &Consumer{client: client, handle: handle, maxConcurrency: maxConcurrency, topic: topic, groupID: groupID}, nil
}

// Run polls until ctx is cancelled. Each batch is handled with at most
// maxConcurrency jobs in flight, then committed.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollRecords(ctx, c.maxConcurrency*2)
		if fetches.IsClientClosed() {
			return nil
		}
		if ctx.Err() != nil {
			c.client.AllowRebalance()
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.Canceled) {
				return
			}
			slog.Error("fetch error", slog.String("topic", topic), slog.Int("partition", int(partition)), slog.Any("error", err))
		})

		records := fetches.Records()
		if len(records) > 0 {
			c.processBatch(ctx, records)
			if ctx.Err() != nil {
				// interrupted jobs were not marked failed; leave them uncommitted
				c.client.AllowRebalance()
				return nil
			}
			// a failed commit means redelivery; the job handler tolerates it
			if err := c.client.CommitRecords(context.WithoutCancel(ctx), records...); err != nil {
				slog.Error("commit failed", slog.Int("records", len(records)), slog.Any("error", err))
			}
		}
		c.client.AllowRebalance()
	}
}

// processBatch never fails: handler errors are already persisted on the job.
func (c *Consumer) processBatch(ctx context.Context, records []*kgo.Record) {
	var g errgroup.Group
	g.SetLimit(c.maxConcurrency)
	for _, rec := range records {
		g.Go(func() error {
			c.processRecord(ctx, rec)
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Consumer) processRecord(ctx context.Context, rec *kgo.Record) {
	task, err := decodeTask(rec)
	if err != nil {
		// poison record; committing skips it
		slog.Error("dropping undecodable record",
			slog.String("topic", rec.Topic),
			slog.Int("partition", int(rec.Partition)),
			slog.Int64("offset", rec.Offset),
			slog.Any("error", err))
		return
	}

	if rid := headerValue(rec, headerRequestID); rid != "" {
		ctx = obsctx.ContextWithRequestID(ctx, rid)
	}
	ctx = obsctx.ContextWithJob(ctx, task.JobID)
	ctx, span := otel.Tracer("queue.consumer").Start(ctx, "ProcessEvaluateTask")
	span.SetAttributes(attribute.String("job.id", task.JobID), attribute.String("visa.type", task.VisaType))
	defer span.End()

	lg := obsctx.LoggerFromContext(ctx)
	observability.StartProcessingJob("evaluate")
	start := time.Now()
	if err := c.handle(ctx, task); err != nil {
		observability.FailJob("evaluate")
		span.RecordError(err)
		lg.Error("evaluation failed", slog.Any("error", err), slog.Duration("elapsed", time.Since(start)))
		return
	}
	observability.CompleteJob("evaluate")
	lg.Info("evaluation finished", slog.Duration("elapsed", time.Since(start)))
}

// Close leaves the group and closes the client.
func (c *Consumer) Close() {
	if c.client != nil {
		c.client.Close()
	}
}
