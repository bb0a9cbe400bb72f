package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-ticketform/pkg/session"
)

func TestDirSchemaStoreLoadAndCache(t *testing.T) {
	t.Parallel()

	store, err := NewDirSchemaStore("testdata")
	if err != nil {
		t.Fatalf("NewDirSchemaStore returned error: %v", err)
	}

	ctx := context.Background()
	first, err := store.LoadSchema(ctx, "ticket.edit")
	if err != nil {
		t.Fatalf("LoadSchema returned error: %v", err)
	}
	if first.ID() != "ticket.edit" {
		t.Fatalf("unexpected schema id %q", first.ID())
	}

	second, err := store.LoadSchema(ctx, "ticket.edit")
	if err != nil {
		t.Fatalf("LoadSchema returned error: %v", err)
	}
	if first != second {
		t.Fatalf("expected the cached compiled schema to be shared")
	}
}

func TestDirSchemaStoreUnknownRef(t *testing.T) {
	t.Parallel()

	store, err := NewDirSchemaStore("testdata")
	if err != nil {
		t.Fatalf("NewDirSchemaStore returned error: %v", err)
	}

	if _, err := store.LoadSchema(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.LoadSchema(context.Background(), "../escape"); err == nil {
		t.Fatalf("expected path refs to be rejected")
	}
}

func TestDirSchemaStoreWatchInvalidates(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	write := func(version string) {
		doc := fmt.Sprintf(`{"id": "ticket.tmp", "version": %q, "sections": [{"id": "main", "fields": [{"id": "title", "type": "text"}]}]}`, version)
		if err := os.WriteFile(filepath.Join(dir, "ticket.tmp.json"), []byte(doc), 0o644); err != nil {
			t.Fatalf("write schema: %v", err)
		}
	}
	write("1")

	store, err := NewDirSchemaStore(dir)
	if err != nil {
		t.Fatalf("NewDirSchemaStore returned error: %v", err)
	}
	if err := store.Watch(); err != nil {
		t.Fatalf("Watch returned error: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	before, err := store.LoadSchema(ctx, "ticket.tmp")
	if err != nil {
		t.Fatalf("LoadSchema returned error: %v", err)
	}
	if before.Version() != "1" {
		t.Fatalf("unexpected version %q", before.Version())
	}

	write("2")

	// The watcher invalidates asynchronously; poll until the reload lands.
	deadline := time.Now().Add(5 * time.Second)
	for {
		after, err := store.LoadSchema(ctx, "ticket.tmp")
		if err != nil {
			t.Fatalf("LoadSchema returned error: %v", err)
		}
		if after.Version() == "2" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("schema change never picked up, still version %q", after.Version())
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestMemoryTicketStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewMemoryTicketStore()
	store.Put(Ticket{ID: "T-1", SchemaRef: "ticket.edit", Values: map[string]any{"title": "Printer on fire"}})

	ctx := context.Background()
	ticket, err := store.LoadTicket(ctx, "T-1")
	if err != nil {
		t.Fatalf("LoadTicket returned error: %v", err)
	}
	if ticket.SchemaRef != "ticket.edit" {
		t.Fatalf("unexpected schema ref %q", ticket.SchemaRef)
	}

	// Mutating the returned copy must not leak into the store.
	ticket.Values["title"] = "changed"
	again, _ := store.LoadTicket(ctx, "T-1")
	if again.Values["title"] != "Printer on fire" {
		t.Fatalf("store leaked its internal value map")
	}

	if err := store.SaveTicket(ctx, "T-1", map[string]any{"title": "Resolved"}); err != nil {
		t.Fatalf("SaveTicket returned error: %v", err)
	}
	saved, _ := store.LoadTicket(ctx, "T-1")
	if diff := cmp.Diff(map[string]any{"title": "Resolved"}, saved.Values); diff != "" {
		t.Fatalf("saved values mismatch (-want +got):\n%s", diff)
	}

	if err := store.SaveTicket(ctx, "T-404", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

type flakySaver struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakySaver) Save(context.Context, session.SavePayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return errors.New("transient outage")
	}
	return nil
}

func TestRetrySaverRecovers(t *testing.T) {
	t.Parallel()

	flaky := &flakySaver{failures: 2}
	saver := NewRetrySaver(flaky, WithRetryAttempts(3), WithRetryBackoff(time.Millisecond, 2*time.Millisecond))

	if err := saver.Save(context.Background(), session.SavePayload{}); err != nil {
		t.Fatalf("expected recovery within budget, got %v", err)
	}
	if flaky.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", flaky.calls)
	}
}

func TestRetrySaverExhausts(t *testing.T) {
	t.Parallel()

	flaky := &flakySaver{failures: 10}
	saver := NewRetrySaver(flaky, WithRetryAttempts(2), WithRetryBackoff(time.Millisecond, 2*time.Millisecond))

	err := saver.Save(context.Background(), session.SavePayload{})
	var autosaveErr *AutosaveError
	if !errors.As(err, &autosaveErr) {
		t.Fatalf("expected AutosaveError, got %v", err)
	}
	if autosaveErr.Attempts != 2 {
		t.Fatalf("expected 2 attempts recorded, got %d", autosaveErr.Attempts)
	}
}

func TestTicketSaver(t *testing.T) {
	t.Parallel()

	store := NewMemoryTicketStore()
	store.Put(Ticket{ID: "T-7", SchemaRef: "ticket.edit"})

	saver := TicketSaver(store, "T-7")
	payload := session.SavePayload{Values: map[string]any{"title": "Autosaved"}}
	if err := saver.Save(context.Background(), payload); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	ticket, _ := store.LoadTicket(context.Background(), "T-7")
	if ticket.Values["title"] != "Autosaved" {
		t.Fatalf("autosaved value missing: %v", ticket.Values)
	}
}
