package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goliatone/go-ticketform/pkg/evaluate"
	"github.com/goliatone/go-ticketform/pkg/schema"
	"github.com/goliatone/go-ticketform/pkg/validate"
)

// FieldSnapshot is the derived per-field state handed to renderers.
type FieldSnapshot struct {
	Visible  bool     `json:"visible"`
	ReadOnly bool     `json:"readOnly"`
	Value    any      `json:"value,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// Snapshot is the full derived state of the form at one point in time.
// Hidden fields appear with Visible false and a nil Value: their stored
// values survive in the session but are never surfaced to a renderer.
type Snapshot struct {
	SchemaID      string                   `json:"schemaId"`
	SchemaVersion string                   `json:"schemaVersion"`
	Fields        map[string]FieldSnapshot `json:"fields"`
	Sections      map[string]bool          `json:"sections"`
	Valid         bool                     `json:"valid"`
}

// Session is the single logical owner of one ticket's in-progress edits.
type Session struct {
	id              string
	schema          *schema.CompiledSchema
	logger          *zap.Logger
	autosave        *autosaver
	autosaveTimeout time.Duration

	mu     sync.Mutex
	values map[string]any
	dirty  bool
	seq    uint64
	closed bool
}

// New creates a session over a compiled schema. Initial values referencing
// field ids absent from the schema fail with a schema error; a ticket that
// no longer matches its schema version is a structural defect, not user
// input.
func New(compiled *schema.CompiledSchema, initialValues map[string]any, opts ...Option) (*Session, error) {
	for id := range initialValues {
		if !compiled.HasField(id) {
			return nil, schema.NewError(compiled.ID(), id, "initial values reference a field the schema does not declare")
		}
	}

	values := make(map[string]any, len(initialValues))
	for id, value := range initialValues {
		values[id] = value
	}
	for _, field := range compiled.Fields() {
		if field.Default == nil {
			continue
		}
		if _, present := values[field.ID]; !present {
			values[field.ID] = field.Default
		}
	}

	s := &Session{
		id:     uuid.NewString(),
		schema: compiled,
		logger: zap.NewNop(),
		values: values,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(
		zap.String("session", s.id),
		zap.String("schema", compiled.ID()),
		zap.String("schema_version", compiled.Version()),
	)
	if s.autosave != nil {
		s.autosave.session = s
		s.autosave.timeout = s.autosaveTimeout
	}
	return s, nil
}

// ID returns the session identifier used in log lines and save payloads.
func (s *Session) ID() string { return s.id }

// Schema returns the compiled schema the session evaluates against.
func (s *Session) Schema() *schema.CompiledSchema { return s.schema }

// Update replaces one field value and returns the fully recomputed
// snapshot. Calling it twice with the same value is harmless: the second
// call produces an identical snapshot.
func (s *Session) Update(fieldID string, value any) (Snapshot, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Snapshot{}, ErrClosed
	}
	if !s.schema.HasField(fieldID) {
		s.mu.Unlock()
		return Snapshot{}, &UnknownFieldError{Field: fieldID}
	}

	s.values[fieldID] = value
	s.dirty = true
	s.seq++
	snapshot := s.buildSnapshotLocked()
	s.mu.Unlock()

	// Scheduled outside the session lock; the autosaver takes its own.
	if s.autosave != nil {
		s.autosave.schedule()
	}
	return snapshot, nil
}

// Snapshot recomputes and returns the current derived state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buildSnapshotLocked()
}

// Values returns a copy of the current value map, including values of
// hidden fields.
func (s *Session) Values() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyValues(s.values)
}

// Dirty reports whether edits have accumulated since the last successful
// autosave (or since creation).
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Submit validates the visible fields and, when clean, returns the full
// value map for persistence by the caller. While any visible field has
// errors it fails with a ValidationError carrying the complete mapping.
func (s *Session) Submit() (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	visibility := evaluate.Evaluate(s.schema, s.values)
	errs := validate.Validate(s.schema, s.values, visibility)
	if !errs.Valid() {
		return nil, &ValidationError{Fields: errs}
	}
	return copyValues(s.values), nil
}

// Close stops the autosave timer and waits for an in-flight attempt to
// finish. Further Update/Submit calls fail with ErrClosed.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if s.autosave != nil {
		s.autosave.stop()
	}
}

func (s *Session) buildSnapshotLocked() Snapshot {
	visibility := evaluate.Evaluate(s.schema, s.values)
	errs := validate.Validate(s.schema, s.values, visibility)

	fields := make(map[string]FieldSnapshot, len(s.schema.Fields()))
	for _, field := range s.schema.Fields() {
		state := visibility.Fields[field.ID]
		snap := FieldSnapshot{
			Visible:  state.Visible,
			ReadOnly: state.ReadOnly,
		}
		if state.Visible {
			snap.Value = s.values[field.ID]
			snap.Errors = errs[field.ID]
		}
		fields[field.ID] = snap
	}

	return Snapshot{
		SchemaID:      s.schema.ID(),
		SchemaVersion: s.schema.Version(),
		Fields:        fields,
		Sections:      visibility.Sections,
		Valid:         errs.Valid(),
	}
}

// savePayload captures a consistent payload for one autosave attempt. It
// reports false while there is nothing to save: the session is closed or
// clean, or the form currently fails validation.
func (s *Session) savePayload() (SavePayload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.dirty {
		return SavePayload{}, false
	}

	visibility := evaluate.Evaluate(s.schema, s.values)
	if errs := validate.Validate(s.schema, s.values, visibility); !errs.Valid() {
		s.logger.Debug("autosave skipped: form invalid", zap.Int("fields_with_errors", len(errs)))
		return SavePayload{}, false
	}

	return SavePayload{
		SessionID:     s.id,
		SchemaID:      s.schema.ID(),
		SchemaVersion: s.schema.Version(),
		Values:        copyValues(s.values),
		CapturedAt:    time.Now(),
		seq:           s.seq,
	}, true
}

// markSaved clears the dirty flag when no edits arrived after the payload
// was captured; later edits keep the session dirty for the follow-up
// attempt.
func (s *Session) markSaved(payload SavePayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq == payload.seq {
		s.dirty = false
	}
}

func copyValues(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for id, value := range values {
		out[id] = value
	}
	return out
}
