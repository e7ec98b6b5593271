package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Store keeps conversations between requests.
// Get returns nil, nil when the conversation does not exist or has expired.
type Store interface {
	Get(ctx context.Context, sessionID string) (*Conversation, error)
	Put(ctx context.Context, conv *Conversation) error
	Delete(ctx context.Context, sessionID string) error
	List(ctx context.Context) ([]*Conversation, error)
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore is an in-process Store for single-instance deployments and tests.
// Conversations are stored encoded so callers never share state through the store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates an in-memory store. A ttl of zero keeps conversations forever.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, sessionID string) (*Conversation, error) {
	m.mu.Lock()
	entry, ok := m.entries[sessionID]
	if ok && m.expired(entry) {
		delete(m.entries, sessionID)
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		return nil, nil
	}
	return decodeConversation(entry.data)
}

func (m *MemoryStore) Put(_ context.Context, conv *Conversation) error {
	if conv == nil || conv.SessionID == "" {
		return fmt.Errorf("session: missing session_id")
	}
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("session: failed to marshal: %w", err)
	}

	entry := memoryEntry{data: data}
	if m.ttl > 0 {
		entry.expiresAt = m.now().Add(m.ttl)
	}

	m.mu.Lock()
	m.entries[conv.SessionID] = entry
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.entries, sessionID)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	convs := make([]*Conversation, 0, len(m.entries))
	for id, entry := range m.entries {
		if m.expired(entry) {
			delete(m.entries, id)
			continue
		}
		conv, err := decodeConversation(entry.data)
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	return convs, nil
}

func (m *MemoryStore) expired(entry memoryEntry) bool {
	return !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt)
}

func decodeConversation(data []byte) (*Conversation, error) {
	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("session: failed to unmarshal: %w", err)
	}
	if conv.State == nil {
		conv.State = NewState()
	}
	return &conv, nil
}
