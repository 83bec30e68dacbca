// Package tasks provides the HTTP handlers for the task CRUD endpoints.
//
// Purpose:
//
//	Each handler performs exactly one call into the persistence collaborator
//	and translates the result into a response. There is no validation, no
//	retry and no authorization.
//
// Dependencies:
//   - github.com/go-chi/chi/v5: routing and path parameters
//   - internal/eventloop: persistence calls run inside Await, the only yield point
//   - internal/tasks: Repository contract
//   - internal/audit: lifecycle events for create and delete
//
// Key Responsibilities:
//   - Hello: GET / - static greeting, never yields
//   - List: GET /tasks - every task ordered by id
//   - Create: POST /tasks - stores title, description and completed verbatim
//   - Delete: DELETE /tasks/{id} - 200 when a row existed, 404 otherwise
//
// Error Handling:
//   - Any repository failure returns 500 {"error": <message>} with the message verbatim
//   - A non-integer id is a persistence-level failure (500), not a 400
//   - A malformed JSON body returns 400 {"error": <decoder message>}
//   - Audit failures are logged and never change the response
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/MGabrielaGuerrero/devops/services/task-api/internal/audit"
	"github.com/MGabrielaGuerrero/devops/services/task-api/internal/eventloop"
	"github.com/MGabrielaGuerrero/devops/services/task-api/internal/metrics"
	"github.com/MGabrielaGuerrero/devops/services/task-api/internal/tasks"
	sharederrors "github.com/MGabrielaGuerrero/devops/shared/go/errors"
	"github.com/MGabrielaGuerrero/devops/shared/go/observability"
)

// Messages returned by the API.
const (
	MessageHello       = "Hello World!"
	MessageDeleted     = "Task deleted successfully"
	MessageNotFound    = "Task not found"
	maxCreateBodyBytes = 1 << 20
)

// Dependencies are the collaborators the handlers need.
type Dependencies struct {
	Repository tasks.Repository
	Loop       *eventloop.Loop
	Audit      audit.Emitter
	Logger     *zap.Logger
}

// Handler serves the task endpoints.
type Handler struct {
	repo   tasks.Repository
	loop   *eventloop.Loop
	audit  audit.Emitter
	logger *zap.Logger
	tracer trace.Tracer
}

// MessageResponse is the {"message": ...} body.
type MessageResponse struct {
	Message string `json:"message"`
}

// NewHandler builds a handler; a nil Audit discards events.
func NewHandler(deps Dependencies) *Handler {
	if deps.Audit == nil {
		deps.Audit = audit.NewNoopEmitter()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Handler{
		repo:   deps.Repository,
		loop:   deps.Loop,
		audit:  deps.Audit,
		logger: deps.Logger.With(zap.String("component", "tasks")),
		tracer: observability.Tracer("github.com/MGabrielaGuerrero/devops/services/task-api/internal/httpapi/tasks"),
	}
}

// RegisterRoutes mounts the greeting and task routes.
func RegisterRoutes(router chi.Router, deps Dependencies) {
	h := NewHandler(deps)
	router.Get("/", h.Hello)
	router.Route("/tasks", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Delete("/{id}", h.Delete)
	})
}

// Hello handles GET /.
func (h *Handler) Hello(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, MessageResponse{Message: MessageHello})
}

// List handles GET /tasks.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "tasks.list")
	defer span.End()

	var list []tasks.Task
	err := h.await(ctx, func(ctx context.Context) (err error) {
		list, err = h.repo.List(ctx)
		return err
	})
	if err != nil {
		h.fail(w, r, span, "list", err)
		return
	}
	if list == nil {
		list = []tasks.Task{}
	}
	metrics.RecordTaskOperation("list", "success")
	span.SetAttributes(attribute.Int("tasks.count", len(list)))
	writeJSON(w, http.StatusOK, list)
}

// Create handles POST /tasks.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "tasks.create")
	defer span.End()

	attrs, err := decodeCreate(r)
	if err != nil {
		h.logger.Debug("invalid request payload", zap.String("request_id", requestID(r)), zap.Error(err))
		metrics.RecordTaskOperation("create", "invalid")
		span.RecordError(err)
		sharederrors.Write(w, http.StatusBadRequest, err)
		return
	}

	var created tasks.Task
	err = h.await(ctx, func(ctx context.Context) error {
		params, err := attrs.Params()
		if err != nil {
			return err
		}
		created, err = h.repo.Create(ctx, params)
		if err != nil {
			return err
		}
		h.emit(ctx, r, audit.ActionTaskCreate, created.ID)
		return nil
	})
	if err != nil {
		h.fail(w, r, span, "create", err)
		return
	}

	metrics.RecordTaskOperation("create", "success")
	span.SetAttributes(attribute.Int64("task.id", created.ID))
	writeJSON(w, http.StatusCreated, created)
}

// Delete handles DELETE /tasks/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "tasks.delete")
	defer span.End()

	var deleted bool
	err := h.await(ctx, func(ctx context.Context) error {
		id, err := tasks.ParseID(chi.URLParam(r, "id"))
		if err != nil {
			return err
		}
		span.SetAttributes(attribute.Int64("task.id", id))
		deleted, err = h.repo.Delete(ctx, id)
		if err != nil {
			return err
		}
		if deleted {
			h.emit(ctx, r, audit.ActionTaskDelete, id)
		}
		return nil
	})
	if err != nil {
		h.fail(w, r, span, "delete", err)
		return
	}

	if !deleted {
		metrics.RecordTaskOperation("delete", "not_found")
		writeJSON(w, http.StatusNotFound, MessageResponse{Message: MessageNotFound})
		return
	}
	metrics.RecordTaskOperation("delete", "success")
	writeJSON(w, http.StatusOK, MessageResponse{Message: MessageDeleted})
}

// await yields the execution context around fn when a loop is configured.
func (h *Handler) await(ctx context.Context, fn func(context.Context) error) error {
	if h.loop == nil {
		return fn(context.WithoutCancel(ctx))
	}
	return h.loop.Await(ctx, fn)
}

func (h *Handler) emit(ctx context.Context, r *http.Request, action string, taskID int64) {
	event := audit.BuildEventFromRequest(audit.BuildEvent(action, taskID), r, requestID(r))
	if err := h.audit.Emit(ctx, event); err != nil {
		metrics.RecordAuditEvent(action, "failure")
		h.logger.Warn("failed to emit audit event",
			zap.String("action", action),
			zap.Int64("task_id", taskID),
			zap.String("request_id", event.RequestID),
			zap.Error(err))
		return
	}
	metrics.RecordAuditEvent(action, "success")
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, span trace.Span, operation string, err error) {
	metrics.RecordTaskOperation(operation, "error")
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	h.logger.Error("task operation failed",
		zap.String("operation", operation),
		zap.String("request_id", requestID(r)),
		zap.Error(err))
	sharederrors.Write(w, http.StatusInternalServerError, err)
}

// decodeCreate reads the body the way a JSON body parser does: only JSON
// content types are parsed, and an empty or non-JSON body is treated as {}.
// Syntax errors and top-level primitives are rejected; an array carries no
// task fields. Field values are left raw for Attributes.Params.
func decodeCreate(r *http.Request) (tasks.Attributes, error) {
	if !isJSON(r.Header.Get("Content-Type")) {
		return tasks.Attributes{}, nil
	}
	var raw json.RawMessage
	if err := json.NewDecoder(io.LimitReader(r.Body, maxCreateBodyBytes)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return tasks.Attributes{}, nil
		}
		return tasks.Attributes{}, err
	}
	switch raw[0] {
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return tasks.Attributes{}, err
		}
		return tasks.AttributesFromObject(fields), nil
	case '[':
		return tasks.Attributes{}, nil
	}
	return tasks.Attributes{}, errors.New("request body must be a JSON object or array")
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func requestID(r *http.Request) string {
	id, _ := observability.RequestIDFromContext(r.Context())
	return id
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
