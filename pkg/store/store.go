// Package store defines the collaborator contracts the form engine
// consumes: a ticket store for loading and persisting value maps and a
// schema store for resolving schema references. It ships a directory
// backed schema store with cache invalidation and an in-memory ticket
// store for tests and examples.
package store

import (
	"context"
	"errors"

	"github.com/goliatone/go-ticketform/pkg/schema"
	"github.com/goliatone/go-ticketform/pkg/session"
)

// ErrNotFound reports a missing ticket or schema reference.
var ErrNotFound = errors.New("store: not found")

// Ticket is the persisted unit a session edits: which schema version the
// record was authored against plus its flat value map.
type Ticket struct {
	ID        string
	SchemaRef string
	Values    map[string]any
}

// TicketStore loads and persists ticket value maps.
type TicketStore interface {
	LoadTicket(ctx context.Context, id string) (Ticket, error)
	SaveTicket(ctx context.Context, id string, values map[string]any) error
}

// SchemaStore resolves a schema reference to its compiled form. Compiled
// schemas are immutable, so implementations are free to cache and share
// them across sessions.
type SchemaStore interface {
	LoadSchema(ctx context.Context, ref string) (*schema.CompiledSchema, error)
}

// TicketSaver adapts a TicketStore into a session autosave target for one
// ticket.
func TicketSaver(tickets TicketStore, ticketID string) session.SaverFunc {
	return func(ctx context.Context, payload session.SavePayload) error {
		return tickets.SaveTicket(ctx, ticketID, payload.Values)
	}
}
