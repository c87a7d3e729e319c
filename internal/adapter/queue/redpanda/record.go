package redpanda

import (
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
)

const (
	headerJobID     = "job_id"
	headerVisaType  = "visa_type"
	headerRequestID = "request_id"
)

// encodeTask builds the record for task. The job id is the key so that
// redeliveries of one job land on the same partition.
func encodeTask(topic string, task domain.EvaluateTask, requestID string) (*kgo.Record, error) {
	if task.JobID == "" {
		return nil, fmt.Errorf("op=redpanda.encodeTask: %w: job id required", domain.ErrInvalidArgument)
	}
	b, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.encodeTask: %w", err)
	}
	rec := &kgo.Record{
		Topic: topic,
		Key:   []byte(task.JobID),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: headerJobID, Value: []byte(task.JobID)},
			{Key: headerVisaType, Value: []byte(task.VisaType)},
		},
	}
	if requestID != "" {
		rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: headerRequestID, Value: []byte(requestID)})
	}
	return rec, nil
}

// decodeTask reads a task from rec. Headers and the key fill fields the body
// left empty.
func decodeTask(rec *kgo.Record) (domain.EvaluateTask, error) {
	var task domain.EvaluateTask
	if len(rec.Value) > 0 {
		if err := json.Unmarshal(rec.Value, &task); err != nil {
			return domain.EvaluateTask{}, fmt.Errorf("op=redpanda.decodeTask: %w", err)
		}
	}
	if task.JobID == "" {
		task.JobID = headerValue(rec, headerJobID)
	}
	if task.JobID == "" {
		task.JobID = string(rec.Key)
	}
	if task.VisaType == "" {
		task.VisaType = headerValue(rec, headerVisaType)
	}
	if task.JobID == "" {
		return domain.EvaluateTask{}, fmt.Errorf("op=redpanda.decodeTask: %w: missing job id", domain.ErrInvalidArgument)
	}
	return task, nil
}

func headerValue(rec *kgo.Record, key string) string {
	for _, h := range rec.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
