package redpanda

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
	obsctx "github.com/fairyhunter13/ai-petition-evaluator/internal/observability"
)

func TestEncodeTask(t *testing.T) {
	t.Parallel()
	rec, err := encodeTask("evals", domain.EvaluateTask{JobID: "job-1", VisaType: "O-1A"}, "req-9")
	require.NoError(t, err)
	assert.Equal(t, "evals", rec.Topic)
	assert.Equal(t, []byte("job-1"), rec.Key)
	assert.JSONEq(t, `{"job_id":"job-1","visa_type":"O-1A"}`, string(rec.Value))
	assert.Equal(t, "job-1", headerValue(rec, headerJobID))
	assert.Equal(t, "O-1A", headerValue(rec, headerVisaType))
	assert.Equal(t, "req-9", headerValue(rec, headerRequestID))
}

func TestEncodeTask_NoRequestIDHeader(t *testing.T) {
	t.Parallel()
	rec, err := encodeTask("evals", domain.EvaluateTask{JobID: "job-1"}, "")
	require.NoError(t, err)
	assert.Len(t, rec.Headers, 2)
}

func TestEncodeTask_RequiresJobID(t *testing.T) {
	t.Parallel()
	_, err := encodeTask("evals", domain.EvaluateTask{VisaType: "O-1A"}, "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestDecodeTask(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		rec     *kgo.Record
		want    domain.EvaluateTask
		wantErr bool
	}{
		{
			name: "body",
			rec:  &kgo.Record{Value: []byte(`{"job_id":"a","visa_type":"EB-1A"}`)},
			want: domain.EvaluateTask{JobID: "a", VisaType: "EB-1A"},
		},
		{
			name: "headers fill empty body",
			rec: &kgo.Record{Headers: []kgo.RecordHeader{
				{Key: headerJobID, Value: []byte("b")},
				{Key: headerVisaType, Value: []byte("O-1A")},
			}},
			want: domain.EvaluateTask{JobID: "b", VisaType: "O-1A"},
		},
		{
			name: "key as last resort",
			rec:  &kgo.Record{Key: []byte("c"), Value: []byte(`{}`)},
			want: domain.EvaluateTask{JobID: "c"},
		},
		{name: "invalid json", rec: &kgo.Record{Value: []byte(`{`)}, wantErr: true},
		{name: "no job id", rec: &kgo.Record{Value: []byte(`{"visa_type":"O-1A"}`)}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := decodeTask(tt.rec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeDecodeTask(t *testing.T) {
	t.Parallel()
	in := domain.EvaluateTask{JobID: "job-7", VisaType: "EB-1A"}
	rec, err := encodeTask("evals", in, "")
	require.NoError(t, err)
	out, err := decodeTask(rec)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

type fakeRequester struct {
	resp kmsg.Response
	err  error
	got  *kmsg.CreateTopicsRequest
}

func (f *fakeRequester) Request(_ context.Context, req kmsg.Request) (kmsg.Response, error) {
	f.got, _ = req.(*kmsg.CreateTopicsRequest)
	return f.resp, f.err
}

func topicsResponse(code int16, msg string) *kmsg.CreateTopicsResponse {
	resp := kmsg.NewPtrCreateTopicsResponse()
	tr := kmsg.NewCreateTopicsResponseTopic()
	tr.Topic = "evals"
	tr.ErrorCode = code
	if msg != "" {
		tr.ErrorMessage = &msg
	}
	resp.Topics = append(resp.Topics, tr)
	return resp
}

func TestEnsureTopic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := &fakeRequester{resp: topicsResponse(0, "")}
	require.NoError(t, ensureTopic(ctx, f, "evals", 3, 1))
	require.NotNil(t, f.got)
	require.Len(t, f.got.Topics, 1)
	assert.Equal(t, "evals", f.got.Topics[0].Topic)
	assert.Equal(t, int32(3), f.got.Topics[0].NumPartitions)

	assert.NoError(t, ensureTopic(ctx, &fakeRequester{resp: topicsResponse(36, "exists")}, "evals", 3, 1))

	err := ensureTopic(ctx, &fakeRequester{resp: topicsResponse(29, "denied")}, "evals", 3, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")

	assert.Error(t, ensureTopic(ctx, &fakeRequester{err: errors.New("dial")}, "evals", 3, 1))
	assert.Error(t, ensureTopic(ctx, &fakeRequester{}, "", 3, 1))
	assert.Error(t, ensureTopic(ctx, &fakeRequester{}, "evals", 0, 1))
}

func TestProcessBatch_BoundsConcurrency(t *testing.T) {
	t.Parallel()
	var inFlight, peak int32
	var mu sync.Mutex
	var seen []string
	c := &Consumer{maxConcurrency: 2, handle: func(ctx context.Context, task domain.EvaluateTask) error {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		mu.Lock()
		seen = append(seen, task.JobID+"/"+obsctx.JobIDFromContext(ctx))
		mu.Unlock()
		if task.JobID == "j3" {
			return errors.New("boom")
		}
		return nil
	}}

	var recs []*kgo.Record
	for _, id := range []string{"j1", "j2", "j3", "j4", "j5"} {
		rec, err := encodeTask("evals", domain.EvaluateTask{JobID: id}, "")
		require.NoError(t, err)
		recs = append(recs, rec)
	}
	recs = append(recs, &kgo.Record{Value: []byte("not json")})

	c.processBatch(context.Background(), recs)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
	assert.ElementsMatch(t, []string{"j1/j1", "j2/j2", "j3/j3", "j4/j4", "j5/j5"}, seen)
}
