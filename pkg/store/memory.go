package store

import (
	"context"
	"fmt"
	"sync"
)

// MemoryTicketStore is a map-backed TicketStore for tests, examples and
// the CLI. Safe for concurrent use.
type MemoryTicketStore struct {
	mu      sync.RWMutex
	tickets map[string]Ticket
}

var _ TicketStore = (*MemoryTicketStore)(nil)

// NewMemoryTicketStore creates an empty store.
func NewMemoryTicketStore() *MemoryTicketStore {
	return &MemoryTicketStore{tickets: make(map[string]Ticket)}
}

// Put seeds or replaces a ticket.
func (m *MemoryTicketStore) Put(ticket Ticket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ticket.Values = copyValues(ticket.Values)
	m.tickets[ticket.ID] = ticket
}

// LoadTicket returns a copy of the stored ticket.
func (m *MemoryTicketStore) LoadTicket(ctx context.Context, id string) (Ticket, error) {
	if err := ctx.Err(); err != nil {
		return Ticket{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	ticket, ok := m.tickets[id]
	if !ok {
		return Ticket{}, fmt.Errorf("store: ticket %q: %w", id, ErrNotFound)
	}
	ticket.Values = copyValues(ticket.Values)
	return ticket, nil
}

// SaveTicket replaces the stored value map. Saving an unknown id fails;
// ticket creation belongs to the surrounding application.
func (m *MemoryTicketStore) SaveTicket(ctx context.Context, id string, values map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	ticket, ok := m.tickets[id]
	if !ok {
		return fmt.Errorf("store: ticket %q: %w", id, ErrNotFound)
	}
	ticket.Values = copyValues(values)
	m.tickets[id] = ticket
	return nil
}

func copyValues(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for id, value := range values {
		out[id] = value
	}
	return out
}
