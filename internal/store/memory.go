package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sattvalabs/wisdomd/internal/compose"
	"github.com/sattvalabs/wisdomd/internal/flow"
	"github.com/sattvalabs/wisdomd/internal/versegraph"
	"github.com/sattvalabs/wisdomd/internal/wisdom"
)

// Memory is an in-process content store. It backs tests and is the
// reference implementation for the store semantics the engines rely on.
type Memory struct {
	mu sync.RWMutex

	atoms      map[string]*wisdom.Atom // id -> atom
	atomByHash map[string]string       // content hash -> id (non-deleted only)

	edges map[string]*versegraph.Edge // triple key -> edge

	sessions    map[string]*flow.Snapshot // snapshot id -> snapshot
	openSession map[string]string         // session id -> open snapshot id

	templates map[string]*compose.Template // id -> template
}

// NewMemory creates an empty in-memory content store.
func NewMemory() *Memory {
	return &Memory{
		atoms:       make(map[string]*wisdom.Atom),
		atomByHash:  make(map[string]string),
		edges:       make(map[string]*versegraph.Edge),
		sessions:    make(map[string]*flow.Snapshot),
		openSession: make(map[string]string),
		templates:   make(map[string]*compose.Template),
	}
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error { return nil }

func edgeKey(ref, mood, topic string) string {
	return strings.Join([]string{ref, mood, topic}, "\x00")
}

// --- wisdom.AtomStore ---

func (m *Memory) CreateAtom(ctx context.Context, atom *wisdom.Atom) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.atomByHash[atom.ContentHash]; exists {
		return wisdom.ErrDuplicateContent
	}

	if atom.ID == "" {
		atom.ID = uuid.NewString()
	}
	stored := *atom
	m.atoms[stored.ID] = &stored
	m.atomByHash[stored.ContentHash] = stored.ID
	return nil
}

func (m *Memory) GetAtomByHash(ctx context.Context, hash string) (*wisdom.Atom, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.atomByHash[hash]
	if !ok {
		return nil, wisdom.ErrAtomNotFound
	}
	copied := *m.atoms[id]
	return &copied, nil
}

func (m *Memory) GetAtom(ctx context.Context, id string) (*wisdom.Atom, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	atom, ok := m.atoms[id]
	if !ok {
		return nil, wisdom.ErrAtomNotFound
	}
	copied := *atom
	return &copied, nil
}

func (m *Memory) ListAtoms(ctx context.Context, filter wisdom.AtomFilter) ([]wisdom.Atom, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	excluded := make(map[string]struct{}, len(filter.ExcludeIDs))
	for _, id := range filter.ExcludeIDs {
		excluded[id] = struct{}{}
	}

	var result []wisdom.Atom
	for _, atom := range m.atoms {
		if atom.Deleted {
			continue
		}
		if filter.Mood != "" && atom.Mood != filter.Mood {
			continue
		}
		if filter.Topic != "" && atom.Topic != filter.Topic {
			continue
		}
		if filter.Phase != "" && atom.Phase != filter.Phase {
			continue
		}
		if filter.Category != "" && atom.Category != filter.Category {
			continue
		}
		if _, skip := excluded[atom.ID]; skip {
			continue
		}
		result = append(result, *atom)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (m *Memory) RecordAtomUsage(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	atom, ok := m.atoms[id]
	if !ok {
		return wisdom.ErrAtomNotFound
	}
	atom.UsageCount++
	atom.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) RecordAtomFeedback(ctx context.Context, id string, positive bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	atom, ok := m.atoms[id]
	if !ok {
		return wisdom.ErrAtomNotFound
	}
	if positive {
		atom.PositiveFeedback++
	} else {
		atom.NegativeFeedback++
	}
	atom.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) CountAtomsByCategory(ctx context.Context) (map[wisdom.Category]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[wisdom.Category]int)
	for _, atom := range m.atoms {
		if atom.Deleted {
			continue
		}
		counts[atom.Category]++
	}
	return counts, nil
}

// --- versegraph.EdgeStore ---

func (m *Memory) GetEdge(ctx context.Context, ref, mood, topic string) (*versegraph.Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	edge, ok := m.edges[edgeKey(ref, mood, topic)]
	if !ok {
		return nil, versegraph.ErrEdgeNotFound
	}
	copied := *edge
	return &copied, nil
}

func (m *Memory) UpdateEdge(ctx context.Context, ref, mood, topic string, seed versegraph.Edge, mutate func(*versegraph.Edge) error) (*versegraph.Edge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := edgeKey(ref, mood, topic)
	var work versegraph.Edge
	if edge, ok := m.edges[key]; ok {
		work = *edge
	} else {
		now := time.Now().UTC()
		work = seed
		work.VerseRef = ref
		work.Mood = mood
		work.Topic = topic
		work.CreatedAt = now
		work.UpdatedAt = now
	}

	// Commit only on success, like the transactional store.
	if err := mutate(&work); err != nil {
		return nil, err
	}
	work.UpdatedAt = time.Now().UTC()

	stored := work
	m.edges[key] = &stored

	copied := work
	return &copied, nil
}

func (m *Memory) ListEdges(ctx context.Context, filter versegraph.EdgeFilter) ([]versegraph.Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []versegraph.Edge
	for _, edge := range m.edges {
		if filter.VerseRef != "" && edge.VerseRef != filter.VerseRef {
			continue
		}
		if filter.Mood != "" && edge.Mood != filter.Mood {
			continue
		}
		if filter.Topic != "" && edge.Topic != filter.Topic {
			continue
		}
		if filter.MinConfidence > 0 && edge.Confidence < filter.MinConfidence {
			continue
		}
		if !filter.UpdatedBefore.IsZero() && !edge.UpdatedAt.Before(filter.UpdatedBefore) {
			continue
		}
		result = append(result, *edge)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].VerseRef != result[j].VerseRef {
			return result[i].VerseRef < result[j].VerseRef
		}
		if result[i].Mood != result[j].Mood {
			return result[i].Mood < result[j].Mood
		}
		return result[i].Topic < result[j].Topic
	})
	return result, nil
}

// --- flow.SessionStore ---

func (m *Memory) GetOpenSession(ctx context.Context, sessionID string) (*flow.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapID, ok := m.openSession[sessionID]
	if !ok {
		return nil, flow.ErrSessionNotFound
	}
	return copySnapshot(m.sessions[snapID]), nil
}

func (m *Memory) PutSession(ctx context.Context, snap *flow.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	m.sessions[snap.ID] = copySnapshot(snap)

	if snap.Closed {
		if openID, ok := m.openSession[snap.SessionID]; ok && openID == snap.ID {
			delete(m.openSession, snap.SessionID)
		}
	} else {
		m.openSession[snap.SessionID] = snap.ID
	}
	return nil
}

func (m *Memory) ListSessions(ctx context.Context, filter flow.SessionFilter) ([]flow.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []flow.Snapshot
	for _, snap := range m.sessions {
		if filter.Closed != nil && snap.Closed != *filter.Closed {
			continue
		}
		result = append(result, *copySnapshot(snap))
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func copySnapshot(snap *flow.Snapshot) *flow.Snapshot {
	copied := *snap
	copied.UsedVerseRefs = append([]string(nil), snap.UsedVerseRefs...)
	copied.UsedAtomIDs = append([]string(nil), snap.UsedAtomIDs...)
	return &copied
}

// --- compose.TemplateStore ---

func (m *Memory) CreateTemplate(ctx context.Context, tmpl *compose.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(tmpl.Slots) == 0 {
		return compose.ErrNoSlots
	}
	if tmpl.ID == "" {
		tmpl.ID = uuid.NewString()
	}
	m.templates[tmpl.ID] = copyTemplate(tmpl)
	return nil
}

func (m *Memory) GetTemplate(ctx context.Context, id string) (*compose.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tmpl, ok := m.templates[id]
	if !ok {
		return nil, compose.ErrTemplateNotFound
	}
	return copyTemplate(tmpl), nil
}

func (m *Memory) ListTemplates(ctx context.Context, filter compose.TemplateFilter) ([]compose.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []compose.Template
	for _, tmpl := range m.templates {
		if filter.Phase != "" && tmpl.Phase != filter.Phase {
			continue
		}
		if filter.Mood != "" && tmpl.Mood != filter.Mood {
			continue
		}
		if filter.Topic != "" && tmpl.Topic != filter.Topic {
			continue
		}
		if filter.ActiveOnly && !tmpl.IsActive {
			continue
		}
		result = append(result, *copyTemplate(tmpl))
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) UpdateTemplate(ctx context.Context, id string, mutate func(*compose.Template) error) (*compose.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tmpl, ok := m.templates[id]
	if !ok {
		return nil, compose.ErrTemplateNotFound
	}

	work := copyTemplate(tmpl)
	if err := mutate(work); err != nil {
		return nil, err
	}
	work.UpdatedAt = time.Now().UTC()
	m.templates[id] = copyTemplate(work)
	return work, nil
}

func (m *Memory) CountActiveTemplates(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, tmpl := range m.templates {
		if tmpl.IsActive {
			count++
		}
	}
	return count, nil
}

func copyTemplate(tmpl *compose.Template) *compose.Template {
	copied := *tmpl
	copied.Slots = append([]compose.Slot(nil), tmpl.Slots...)
	return &copied
}
