package friendreq

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]User
	byEmail  map[string]string
	friends  map[string]map[string]struct{}
	incoming map[string]map[string]Request
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]User),
		byEmail:  make(map[string]string),
		friends:  make(map[string]map[string]struct{}),
		incoming: make(map[string]map[string]Request),
	}
}

func (m *MemoryStore) UserByEmail(_ context.Context, email string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[NormalizeEmail(email)]
	if !ok {
		return User{}, ErrNotFound
	}
	return m.users[id], nil
}

func (m *MemoryStore) UserByID(_ context.Context, id string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *MemoryStore) PutUser(_ context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.users[u.ID]; ok {
		delete(m.byEmail, NormalizeEmail(old.Email))
	}
	m.users[u.ID] = u
	m.byEmail[NormalizeEmail(u.Email)] = u.ID
	return nil
}

func (m *MemoryStore) Users(context.Context) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (m *MemoryStore) AreFriends(_ context.Context, a, b string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.friends[a][b]
	return ok, nil
}

func (m *MemoryStore) AddFriends(_ context.Context, a, b string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pair := range [][2]string{{a, b}, {b, a}} {
		set := m.friends[pair[0]]
		if set == nil {
			set = make(map[string]struct{})
			m.friends[pair[0]] = set
		}
		set[pair[1]] = struct{}{}
	}
	return nil
}

func (m *MemoryStore) AddIncoming(_ context.Context, req Request) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.incoming[req.To]
	if set == nil {
		set = make(map[string]Request)
		m.incoming[req.To] = set
	}
	if _, ok := set[req.From]; ok {
		return false, nil
	}
	set[req.From] = req
	return true, nil
}

// Incoming returns pending requests, oldest first.
func (m *MemoryStore) Incoming(_ context.Context, to string) ([]Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Request, 0, len(m.incoming[to]))
	for _, r := range m.incoming[to] {
		out = append(out, r)
	}
	sortRequests(out)
	return out, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func sortRequests(rs []Request) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].ID < rs[j].ID
		}
		return rs[i].CreatedAt.Before(rs[j].CreatedAt)
	})
}
