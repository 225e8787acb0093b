package consumers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/aegis/internal/application/dto"
	"github.com/turtacn/aegis/pkg/errors"
	"github.com/turtacn/aegis/pkg/logger"
)

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	done      chan struct{}
}

func newFakeReader(values ...string) *fakeReader {
	r := &fakeReader{done: make(chan struct{})}
	for i, v := range values {
		r.queue = append(r.queue, kafka.Message{Offset: int64(i), Value: []byte(v)})
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	select {
	case <-r.done:
	default:
		close(r.done)
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type mockRecorder struct{ mock.Mock }

func (m *mockRecorder) RecordFailure(ctx context.Context, req *dto.RecordFailureRequest) error {
	return m.Called(ctx, req).Error(0)
}

func TestFailureConsumer_Start(t *testing.T) {
	reader := newFakeReader(
		`{"identity_id":"u1","source_ip":"10.0.0.1","reason":"bad_password"}`,
		`not json`,
		`{"identity_id":""}`,
		`{"identity_id":"u2"}`,
		`{"identity_id":"u3"}`,
	)
	recorder := new(mockRecorder)
	recorder.On("RecordFailure", mock.Anything, mock.MatchedBy(func(r *dto.RecordFailureRequest) bool {
		return r.IdentityID == "u1" && r.Reason == "bad_password"
	})).Return(nil).Once()
	recorder.On("RecordFailure", mock.Anything, mock.MatchedBy(func(r *dto.RecordFailureRequest) bool {
		return r.IdentityID == ""
	})).Return(errors.ErrValidation("invalid request", nil)).Once()
	u2 := mock.MatchedBy(func(r *dto.RecordFailureRequest) bool { return r.IdentityID == "u2" })
	recorder.On("RecordFailure", mock.Anything, u2).Return(errors.ErrRetriesExhausted("profile.record_failure", 3, nil)).Once()
	recorder.On("RecordFailure", mock.Anything, u2).Return(nil).Once()
	recorder.On("RecordFailure", mock.Anything, mock.MatchedBy(func(r *dto.RecordFailureRequest) bool {
		return r.IdentityID == "u3"
	})).Return(nil).Once()

	c := NewFailureConsumer(reader, recorder, logger.NewNoopLogger())
	c.retryDelay = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(stopped)
	}()

	select {
	case <-reader.done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not drain the queue")
	}
	cancel()
	<-stopped

	// the store failure on u2 is retried in place before anything after it is committed
	assert.Equal(t, []int64{0, 1, 2, 3, 4}, reader.commits())
	recorder.AssertExpectations(t)
	require.NoError(t, c.Close())
}

func TestFailureConsumer_StopsWithoutCommittingUnfinishedMessage(t *testing.T) {
	reader := newFakeReader(`{"identity_id":"u1"}`, `{"identity_id":"u2"}`)
	recorder := new(mockRecorder)
	attempted := make(chan struct{}, 1)
	recorder.On("RecordFailure", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		select {
		case attempted <- struct{}{}:
		default:
		}
	}).Return(errors.ErrTimeout("profile.record_failure", context.DeadlineExceeded))

	c := NewFailureConsumer(reader, recorder, logger.NewNoopLogger())
	c.retryDelay = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(stopped)
	}()

	select {
	case <-attempted:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not attempt the first message")
	}
	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop on cancellation")
	}

	assert.Empty(t, reader.commits())
	recorder.AssertNumberOfCalls(t, "RecordFailure", 1)
}
