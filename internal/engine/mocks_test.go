package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rapidresolve/engine/internal/config"
	"github.com/rapidresolve/engine/internal/events"
	"github.com/rapidresolve/engine/internal/storage"
	"github.com/rapidresolve/engine/internal/store"
	"github.com/rapidresolve/engine/pkg/models"
)

// memStore is an in-memory store.Store mirroring the transactional semantics
// of the Postgres implementation: sequence numbers assigned on append, the
// urgency average recomputed, reads returning copies.
type memStore struct {
	mu           sync.Mutex
	tickets      map[uuid.UUID]*models.Ticket
	interactions map[uuid.UUID][]*models.Interaction
	turns        map[uuid.UUID][]*models.ConversationTurn
	media        map[uuid.UUID][]*models.MediaFile
	attachments  map[uuid.UUID][]*models.FileAttachment

	appendErr error // injected AppendInteraction failure
}

func newMemStore() *memStore {
	return &memStore{
		tickets:      map[uuid.UUID]*models.Ticket{},
		interactions: map[uuid.UUID][]*models.Interaction{},
		turns:        map[uuid.UUID][]*models.ConversationTurn{},
		media:        map[uuid.UUID][]*models.MediaFile{},
		attachments:  map[uuid.UUID][]*models.FileAttachment{},
	}
}

func copyTicket(t *models.Ticket) *models.Ticket {
	c := *t
	c.SolutionAttempts = append([]models.SolutionAttempt(nil), t.SolutionAttempts...)
	return &c
}

func (m *memStore) Ping(ctx context.Context) error { return nil }

func (m *memStore) CreateTicket(ctx context.Context, t *models.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickets[t.ID] = copyTicket(t)
	return nil
}

func (m *memStore) GetTicket(ctx context.Context, id uuid.UUID) (*models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyTicket(t), nil
}

func (m *memStore) GetTicketByExternalID(ctx context.Context, externalID string) (*models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tickets {
		if t.ExternalID == externalID {
			return copyTicket(t), nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) UpdateTicket(ctx context.Context, t *models.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tickets[t.ID]; !ok {
		return store.ErrNotFound
	}
	m.tickets[t.ID] = copyTicket(t)
	return nil
}

func (m *memStore) ListTickets(ctx context.Context, filter store.TicketFilter) ([]*models.Ticket, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Ticket
	for _, t := range m.tickets {
		out = append(out, copyTicket(t))
	}
	return out, len(out), nil
}

func (m *memStore) DeleteTicket(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tickets, id)
	delete(m.interactions, id)
	delete(m.turns, id)
	delete(m.attachments, id)
	return nil
}

func (m *memStore) AppendInteraction(ctx context.Context, params store.AppendInteractionParams) (*models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return nil, m.appendErr
	}
	t, ok := m.tickets[params.TicketID]
	if !ok {
		return nil, store.ErrNotFound
	}

	params.Interaction.SequenceNumber = len(m.interactions[params.TicketID]) + 1
	m.interactions[params.TicketID] = append(m.interactions[params.TicketID], params.Interaction)

	base := len(m.turns[params.TicketID])
	for i, turn := range params.Turns {
		turn.Turn = base + i + 1
		m.turns[params.TicketID] = append(m.turns[params.TicketID], turn)
	}
	for _, f := range params.MediaFiles {
		m.media[f.InteractionID] = append(m.media[f.InteractionID], f)
	}

	var sum float64
	var n int
	for _, i := range m.interactions[params.TicketID] {
		if i.UrgencyScore != nil {
			sum += *i.UrgencyScore
			n++
		}
	}
	if n > 0 {
		avg := sum / float64(n)
		t.AvgUrgencyScore = &avg
	}
	t.UpdatedAt = time.Now().UTC()
	return copyTicket(t), nil
}

func (m *memStore) GetInteraction(ctx context.Context, id uuid.UUID) (*models.Interaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, list := range m.interactions {
		for _, i := range list {
			if i.ID == id {
				return i, nil
			}
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) ListInteractions(ctx context.Context, ticketID uuid.UUID) ([]*models.Interaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.Interaction(nil), m.interactions[ticketID]...), nil
}

func (m *memStore) UpdateInteraction(ctx context.Context, i *models.Interaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ticketID, list := range m.interactions {
		for idx, existing := range list {
			if existing.ID == i.ID {
				m.interactions[ticketID][idx] = i
				return nil
			}
		}
	}
	return store.ErrNotFound
}

func (m *memStore) AppendTurns(ctx context.Context, ticketID uuid.UUID, turns []*models.ConversationTurn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	base := len(m.turns[ticketID])
	for i, turn := range turns {
		turn.Turn = base + i + 1
		m.turns[ticketID] = append(m.turns[ticketID], turn)
	}
	return nil
}

func (m *memStore) RecentTurns(ctx context.Context, ticketID uuid.UUID, limit int) ([]*models.ConversationTurn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.turns[ticketID]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]*models.ConversationTurn(nil), all...), nil
}

func (m *memStore) CountTurns(ctx context.Context, ticketID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.turns[ticketID]), nil
}

func (m *memStore) ListMediaFiles(ctx context.Context, interactionID uuid.UUID) ([]*models.MediaFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.MediaFile(nil), m.media[interactionID]...), nil
}

func (m *memStore) CreateFileAttachment(ctx context.Context, a *models.FileAttachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attachments[a.TicketID] = append(m.attachments[a.TicketID], a)
	return nil
}

func (m *memStore) ListFileAttachments(ctx context.Context, ticketID uuid.UUID) ([]*models.FileAttachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.FileAttachment(nil), m.attachments[ticketID]...), nil
}

var _ store.Store = (*memStore)(nil)

// memCache is an in-memory cache.Cache without TTL handling.
type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{entries: map[string][]byte{}}
}

func (c *memCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func (c *memCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *memCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *memCache) Ping(ctx context.Context) error { return nil }

func (c *memCache) SetTicketContext(ctx context.Context, ticketID uuid.UUID, data []byte, ttl time.Duration) error {
	return c.Set(ctx, "ctx:"+ticketID.String(), data, ttl)
}

func (c *memCache) GetTicketContext(ctx context.Context, ticketID uuid.UUID) ([]byte, bool, error) {
	return c.Get(ctx, "ctx:"+ticketID.String())
}

func (c *memCache) InvalidateTicketContext(ctx context.Context, ticketID uuid.UUID) error {
	return c.Delete(ctx, "ctx:"+ticketID.String())
}

func (c *memCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	return 1, nil
}

// memBlobs is an in-memory storage.BlobStore.
type memBlobs struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploadErr error
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: map[string][]byte{}}
}

func (b *memBlobs) Upload(ctx context.Context, data []byte, key, contentType string) (storage.ObjectInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.uploadErr != nil {
		return storage.ObjectInfo{}, b.uploadErr
	}
	b.objects[key] = data
	return storage.ObjectInfo{
		Key:         key,
		Bucket:      "test",
		URL:         "mem://" + key,
		Size:        int64(len(data)),
		ContentType: contentType,
	}, nil
}

func (b *memBlobs) Download(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return data, nil
}

func (b *memBlobs) Delete(ctx context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key]
	delete(b.objects, key)
	return ok, nil
}

func (b *memBlobs) List(ctx context.Context, prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var keys []string
	for k := range b.objects {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (b *memBlobs) Stats(ctx context.Context) (storage.Stats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := storage.Stats{Backend: "mem"}
	for _, data := range b.objects {
		s.ObjectCount++
		s.TotalBytes += int64(len(data))
	}
	return s, nil
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) typesSeen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		MaxContextTurns:        20,
		AutoEscalateThreshold:  0.8,
		LowConfidenceThreshold: 0.6,
		MaxFailedAttempts:      2,
		DefaultPriority:        "medium",
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
