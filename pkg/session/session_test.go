package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-ticketform/pkg/schema"
)

func countryStateSchema(t *testing.T) *schema.CompiledSchema {
	t.Helper()
	compiled, err := schema.Compile(schema.FormSchema{
		ID:      "ticket.address",
		Version: "1",
		Sections: []schema.SectionDefinition{{
			ID: "location",
			Fields: []schema.FieldDefinition{
				{ID: "country", Type: schema.FieldTypeSelect,
					Options: []schema.Option{{Value: "US"}, {Value: "CA"}}},
				{ID: "state", Type: schema.FieldTypeText, Required: true,
					VisibleWhen: `country == 'US'`},
			},
		}},
	})
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}
	return compiled
}

type recordingSaver struct {
	mu       sync.Mutex
	payloads []SavePayload
}

func (r *recordingSaver) Save(_ context.Context, payload SavePayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, payload)
	return nil
}

func (r *recordingSaver) saved() []SavePayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SavePayload(nil), r.payloads...)
}

func TestCountryStateScenario(t *testing.T) {
	t.Parallel()

	sess, err := New(countryStateSchema(t), nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer sess.Close()

	// country unset: state is hidden and its required rule is suspended.
	snapshot := sess.Snapshot()
	if snapshot.Fields["state"].Visible {
		t.Fatalf("state should be hidden while country is unset")
	}
	if !snapshot.Valid {
		t.Fatalf("hidden required state must not block validity: %+v", snapshot.Fields)
	}
	if _, err := sess.Submit(); err != nil {
		t.Fatalf("Submit should pass with state hidden: %v", err)
	}

	snapshot, err = sess.Update("country", "US")
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if !snapshot.Fields["state"].Visible {
		t.Fatalf("state should become visible for US")
	}
	if snapshot.Valid {
		t.Fatalf("empty visible required state should invalidate the form")
	}

	_, err = sess.Submit()
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if diff := cmp.Diff([]string{"required"}, valErr.Fields["state"]); diff != "" {
		t.Fatalf("state errors mismatch (-want +got):\n%s", diff)
	}
}

func TestNewRejectsUnknownInitialValues(t *testing.T) {
	t.Parallel()

	_, err := New(countryStateSchema(t), map[string]any{"zipcode": "90210"})
	var schemaErr *schema.Error
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected *schema.Error, got %v", err)
	}
	if schemaErr.Field != "zipcode" {
		t.Fatalf("expected offending field zipcode, got %q", schemaErr.Field)
	}
}

func TestUpdateUnknownField(t *testing.T) {
	t.Parallel()

	sess, err := New(countryStateSchema(t), nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer sess.Close()

	_, err = sess.Update("zipcode", "90210")
	var unknown *UnknownFieldError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownFieldError, got %v", err)
	}
	if unknown.Field != "zipcode" {
		t.Fatalf("unexpected field %q", unknown.Field)
	}
}

func TestUpdateIdempotent(t *testing.T) {
	t.Parallel()

	sess, err := New(countryStateSchema(t), nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer sess.Close()

	first, err := sess.Update("country", "CA")
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	second, err := sess.Update("country", "CA")
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("repeated update changed the snapshot (-first +second):\n%s", diff)
	}
}

func TestSubmitRoundTrip(t *testing.T) {
	t.Parallel()

	compiled := countryStateSchema(t)
	sess, err := New(compiled, nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer sess.Close()

	if _, err := sess.Update("country", "US"); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if _, err := sess.Update("state", "WA"); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	values, err := sess.Submit()
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	replay, err := New(compiled, values)
	if err != nil {
		t.Fatalf("replay session: %v", err)
	}
	defer replay.Close()

	if diff := cmp.Diff(sess.Snapshot(), replay.Snapshot()); diff != "" {
		t.Fatalf("round-trip snapshot mismatch (-original +replay):\n%s", diff)
	}
}

func TestHiddenValuesPreservedButNotSurfaced(t *testing.T) {
	t.Parallel()

	sess, err := New(countryStateSchema(t), map[string]any{"country": "US", "state": "WA"})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer sess.Close()

	snapshot, err := sess.Update("country", "CA")
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	state := snapshot.Fields["state"]
	if state.Visible || state.Value != nil || state.Errors != nil {
		t.Fatalf("hidden state leaked into snapshot: %+v", state)
	}
	if got := sess.Values()["state"]; got != "WA" {
		t.Fatalf("stored state value lost, got %v", got)
	}
}

func TestDebounceCoalescesRapidUpdates(t *testing.T) {
	t.Parallel()

	saver := &recordingSaver{}
	sess, err := New(countryStateSchema(t), nil, WithAutosave(saver, 50*time.Millisecond))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer sess.Close()

	if _, err := sess.Update("country", "CA"); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if _, err := sess.Update("country", "US"); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if _, err := sess.Update("state", "WA"); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	time.Sleep(300 * time.Millisecond)

	saved := saver.saved()
	if len(saved) != 1 {
		t.Fatalf("expected exactly one autosave, got %d", len(saved))
	}
	want := map[string]any{"country": "US", "state": "WA"}
	if diff := cmp.Diff(want, saved[0].Values); diff != "" {
		t.Fatalf("autosave payload mismatch (-want +got):\n%s", diff)
	}
	if sess.Dirty() {
		t.Fatalf("session should be clean after a successful autosave")
	}
}

func TestAutosaveSkippedWhileInvalid(t *testing.T) {
	t.Parallel()

	saver := &recordingSaver{}
	sess, err := New(countryStateSchema(t), nil, WithAutosave(saver, 30*time.Millisecond))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer sess.Close()

	// US with an empty state is invalid; the timer fires but saves nothing.
	if _, err := sess.Update("country", "US"); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	if got := len(saver.saved()); got != 0 {
		t.Fatalf("invalid form must not autosave, got %d attempts", got)
	}
	if !sess.Dirty() {
		t.Fatalf("skipped autosave must leave the session dirty")
	}
}

type blockingSaver struct {
	recordingSaver
	started chan struct{}
	release chan struct{}
}

func (b *blockingSaver) Save(ctx context.Context, payload SavePayload) error {
	b.started <- struct{}{}
	<-b.release
	return b.recordingSaver.Save(ctx, payload)
}

func TestUpdateDuringInFlightSchedulesFollowUp(t *testing.T) {
	t.Parallel()

	saver := &blockingSaver{
		started: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	sess, err := New(countryStateSchema(t), nil, WithAutosave(saver, 30*time.Millisecond))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if _, err := sess.Update("country", "CA"); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	// Wait for the first attempt to start, then edit mid-flight.
	select {
	case <-saver.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("first autosave never started")
	}
	if _, err := sess.Update("country", "US"); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	close(saver.release)

	select {
	case <-saver.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("follow-up autosave never started")
	}
	sess.Close()

	saved := saver.saved()
	if len(saved) != 2 {
		t.Fatalf("expected a follow-up attempt, got %d", len(saved))
	}
	if got := saved[0].Values["country"]; got != "CA" {
		t.Fatalf("first payload should hold the pre-edit value, got %v", got)
	}
	if got := saved[1].Values["country"]; got != "US" {
		t.Fatalf("follow-up payload should hold the latest value, got %v", got)
	}
}

func TestCloseStopsUpdates(t *testing.T) {
	t.Parallel()

	sess, err := New(countryStateSchema(t), nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	sess.Close()

	if _, err := sess.Update("country", "US"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := sess.Submit(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from Submit, got %v", err)
	}
}

func TestDefaultsSeedValues(t *testing.T) {
	t.Parallel()

	compiled, err := schema.Compile(schema.FormSchema{
		ID: "ticket.defaults",
		Sections: []schema.SectionDefinition{{
			ID: "main",
			Fields: []schema.FieldDefinition{
				{ID: "notify", Type: schema.FieldTypeCheckbox, Default: true},
			},
		}},
	})
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}

	sess, err := New(compiled, nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer sess.Close()

	if got := sess.Values()["notify"]; got != true {
		t.Fatalf("default not seeded, got %v", got)
	}
}
