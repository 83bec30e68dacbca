// Package audit provides audit event emission for task lifecycle changes.
//
// Purpose:
//
//	Successful task creations and deletions produce an audit Event. Events
//	are written to Kafka when brokers are configured and to the structured
//	log otherwise. Emission failures are logged by the caller and never change
//	the HTTP response.
//
// Dependencies:
//   - github.com/google/uuid: event identifiers
//   - github.com/segmentio/kafka-go: Kafka writer
//   - go.uber.org/zap: logger emitter
//
// Thread Safety:
//   - Every Emitter implementation is safe for concurrent use
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Actions emitted by the task handlers.
const (
	ActionTaskCreate = "task.create"
	ActionTaskDelete = "task.delete"
)

// Event is a single audit record.
type Event struct {
	EventID   uuid.UUID `json:"event_id"`
	Action    string    `json:"action"`
	TaskID    int64     `json:"task_id"`
	Resource  string    `json:"resource,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Hash      string    `json:"hash"` // SHA256 of the event without the hash
	CreatedAt time.Time `json:"created_at"`
}

// Emitter sends audit events to a sink.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// LoggerEmitter writes events to the structured log.
type LoggerEmitter struct {
	logger *zap.Logger
}

// NewLoggerEmitter returns an emitter writing through logger.
func NewLoggerEmitter(logger *zap.Logger) *LoggerEmitter {
	return &LoggerEmitter{logger: logger.With(zap.String("component", "audit"))}
}

// Emit logs the event.
func (e *LoggerEmitter) Emit(_ context.Context, event Event) error {
	e.logger.Info("audit event",
		zap.String("event_id", event.EventID.String()),
		zap.String("action", event.Action),
		zap.Int64("task_id", event.TaskID),
		zap.String("resource", event.Resource),
		zap.String("request_id", event.RequestID),
		zap.String("hash", event.Hash),
	)
	return nil
}

// NoopEmitter discards events.
type NoopEmitter struct{}

// NewNoopEmitter returns an emitter that discards events.
func NewNoopEmitter() *NoopEmitter {
	return &NoopEmitter{}
}

// Emit does nothing.
func (e *NoopEmitter) Emit(context.Context, Event) error {
	return nil
}

// BuildEvent creates a hashed event for action on taskID.
func BuildEvent(action string, taskID int64) Event {
	event := Event{
		EventID:   uuid.New(),
		Action:    action,
		TaskID:    taskID,
		Resource:  "tasks/" + strconv.FormatInt(taskID, 10),
		CreatedAt: time.Now().UTC(),
	}
	event.Hash = computeEventHash(event)
	return event
}

// BuildEventFromRequest adds request metadata and recomputes the hash.
func BuildEventFromRequest(event Event, r *http.Request, requestID string) Event {
	event.IPAddress = getClientIP(r)
	event.UserAgent = r.Header.Get("User-Agent")
	event.RequestID = requestID
	event.Hash = computeEventHash(event)
	return event
}

// Verify reports whether the event hash matches its content.
func Verify(event Event) bool {
	return event.Hash != "" && event.Hash == computeEventHash(event)
}

func computeEventHash(event Event) string {
	eventCopy := event
	eventCopy.Hash = ""

	payload, err := json.Marshal(eventCopy)
	if err != nil {
		payload = []byte(fmt.Sprintf("%+v", eventCopy))
	}

	hash := sha256.Sum256(payload)
	return hex.EncodeToString(hash[:])
}

// getClientIP prefers proxy headers; RealIP middleware has usually already
// folded them into RemoteAddr.
func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
