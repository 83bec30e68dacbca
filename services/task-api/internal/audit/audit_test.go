package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestBuildEvent(t *testing.T) {
	event := BuildEvent(ActionTaskCreate, 7)
	assert.Equal(t, ActionTaskCreate, event.Action)
	assert.Equal(t, int64(7), event.TaskID)
	assert.Equal(t, "tasks/7", event.Resource)
	assert.NotEqual(t, [16]byte{}, [16]byte(event.EventID))
	assert.True(t, Verify(event))

	tampered := event
	tampered.TaskID = 8
	assert.False(t, Verify(tampered))
}

func TestBuildEventFromRequest(t *testing.T) {
	req := httptest.NewRequest("POST", "/tasks", nil)
	req.Header.Set("User-Agent", "taskctl/1.0")
	req.Header.Set("X-Forwarded-For", "203.0.113.9")

	event := BuildEventFromRequest(BuildEvent(ActionTaskDelete, 3), req, "req-1")
	assert.Equal(t, "203.0.113.9", event.IPAddress)
	assert.Equal(t, "taskctl/1.0", event.UserAgent)
	assert.Equal(t, "req-1", event.RequestID)
	assert.True(t, Verify(event))
}

func TestLoggerEmitter(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	emitter := NewLoggerEmitter(zap.New(core))

	require.NoError(t, emitter.Emit(context.Background(), BuildEvent(ActionTaskCreate, 1)))

	entries := logs.FilterMessage("audit event").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "audit", fields["component"])
	assert.Equal(t, ActionTaskCreate, fields["action"])
	assert.Equal(t, int64(1), fields["task_id"])
}

func TestKafkaEmitterPublishes(t *testing.T) {
	w := &fakeWriter{}
	emitter := newKafkaEmitter(w, "tasks.audit", nil)

	event := BuildEvent(ActionTaskCreate, 42)
	require.NoError(t, emitter.Emit(context.Background(), event))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "42", string(msg.Key))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.EventID, decoded.EventID)
	assert.True(t, Verify(decoded))
}

func TestKafkaEmitterErrorsAndClose(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	emitter := newKafkaEmitter(w, "tasks.audit", nil)

	err := emitter.Emit(context.Background(), BuildEvent(ActionTaskDelete, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")

	require.NoError(t, emitter.Close())
	require.NoError(t, emitter.Close())
	assert.True(t, w.closed)
	assert.Error(t, emitter.Emit(context.Background(), BuildEvent(ActionTaskDelete, 1)))
}

type stalledWriter struct{}

func (stalledWriter) WriteMessages(ctx context.Context, _ ...kafka.Message) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stalledWriter) Close() error { return nil }

func TestKafkaEmitterBoundsUnreachableBroker(t *testing.T) {
	emitter := newKafkaEmitter(stalledWriter{}, "tasks.audit", nil)
	assert.Equal(t, DefaultPublishTimeout, emitter.timeout)
	emitter.timeout = 20 * time.Millisecond

	start := time.Now()
	err := emitter.Emit(context.Background(), BuildEvent(ActionTaskCreate, 7))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestNewEmitterSelection(t *testing.T) {
	logger := zap.NewNop()

	emitter, err := NewEmitter(KafkaConfig{Topic: "tasks.audit"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &LoggerEmitter{}, emitter)

	emitter, err = NewEmitter(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "tasks.audit", ClientID: "task-api"}, logger)
	require.NoError(t, err)
	kafkaEmitter, ok := emitter.(*KafkaEmitter)
	require.True(t, ok)
	assert.Equal(t, DefaultPublishTimeout, kafkaEmitter.timeout)
	require.NoError(t, kafkaEmitter.Close())

	_, err = NewKafkaEmitter(KafkaConfig{Brokers: []string{"localhost:9092"}}, logger)
	assert.Error(t, err)
}
