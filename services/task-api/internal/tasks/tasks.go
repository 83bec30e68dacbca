// Package tasks defines the Task entity and the persistence contract the
// HTTP handlers depend on.
package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Task is a row of the task table. Title and description are nullable and
// stored verbatim; no field is validated by the service.
type Task struct {
	ID          int64     `json:"id"`
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// CreateParams carries the attributes accepted by POST /tasks. A nil
// Completed lets the store default apply (false).
type CreateParams struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
}

// Repository is the persistence collaborator. Implementations are safe for
// concurrent use.
type Repository interface {
	List(ctx context.Context) ([]Task, error)
	Create(ctx context.Context, params CreateParams) (Task, error)
	// Delete reports whether a row with the id existed.
	Delete(ctx context.Context, id int64) (bool, error)
	Ping(ctx context.Context) error
	Close()
}

// ErrInvalidID is returned by ParseID for ids that are not integers.
var ErrInvalidID = errors.New("tasks: invalid task id")

// ParseID converts a path parameter into a task id.
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid input syntax for type integer: %q", ErrInvalidID, raw)
	}
	return id, nil
}

// CompletedOrDefault resolves the store default for an omitted completed flag.
func (p CreateParams) CompletedOrDefault() bool {
	return p.Completed != nil && *p.Completed
}

// ErrInvalidValue marks an attribute the store cannot coerce to its column type.
var ErrInvalidValue = errors.New("tasks: invalid attribute value")

// Attributes are the create fields exactly as the client sent them. Keys are
// matched case-sensitively; anything else in the body is ignored.
type Attributes struct {
	Title       json.RawMessage
	Description json.RawMessage
	Completed   json.RawMessage
}

// AttributesFromObject picks the task fields out of a decoded JSON object.
func AttributesFromObject(fields map[string]json.RawMessage) Attributes {
	return Attributes{
		Title:       fields["title"],
		Description: fields["description"],
		Completed:   fields["completed"],
	}
}

// Params coerces the attributes the way the task columns accept them:
// numbers become text, and "true"/"false"/"1"/"0"/1/0 become booleans.
// Missing and null values stay nil.
func (a Attributes) Params() (CreateParams, error) {
	var (
		p   CreateParams
		err error
	)
	if p.Title, err = textAttr("title", a.Title); err != nil {
		return CreateParams{}, err
	}
	if p.Description, err = textAttr("description", a.Description); err != nil {
		return CreateParams{}, err
	}
	if p.Completed, err = boolAttr("completed", a.Completed); err != nil {
		return CreateParams{}, err
	}
	return p, nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func textAttr(name string, raw json.RawMessage) (*string, error) {
	if isNull(raw) {
		return nil, nil
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidValue, name, err)
	}
	switch v := v.(type) {
	case string:
		return &v, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %s is not a valid string", ErrInvalidValue, name, v)
		}
		s := strconv.FormatFloat(f, 'f', -1, 64)
		return &s, nil
	}
	return nil, fmt.Errorf("%w: %s: %s is not a valid string", ErrInvalidValue, name, bytes.TrimSpace(raw))
}

func boolAttr(name string, raw json.RawMessage) (*bool, error) {
	if isNull(raw) {
		return nil, nil
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidValue, name, err)
	}
	var b bool
	switch v := v.(type) {
	case bool:
		b = v
	case json.Number:
		switch f, err := v.Float64(); {
		case err == nil && f == 1:
			b = true
		case err == nil && f == 0:
		default:
			return nil, fmt.Errorf("%w: %s: %s is not a valid boolean", ErrInvalidValue, name, v)
		}
	case string:
		switch v {
		case "true", "1":
			b = true
		case "false", "0":
		default:
			return nil, fmt.Errorf("%w: %s: %q is not a valid boolean", ErrInvalidValue, name, v)
		}
	default:
		return nil, fmt.Errorf("%w: %s: %s is not a valid boolean", ErrInvalidValue, name, bytes.TrimSpace(raw))
	}
	return &b, nil
}
