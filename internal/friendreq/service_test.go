package friendreq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (n *fakeNotifier) NotifyRequest(_ context.Context, from, to User) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, from.ID+"->"+to.ID)
	return n.err
}

func newTestService(t *testing.T) (*Service, *MemoryStore, *fakeNotifier) {
	t.Helper()
	store := NewMemoryStore()
	n := &fakeNotifier{}
	svc := NewService(store, n, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	ids := 0
	var idMu sync.Mutex
	svc.newID = func() string {
		idMu.Lock()
		defer idMu.Unlock()
		ids++
		return "req-" + string(rune('0'+ids))
	}

	ctx := context.Background()
	for _, u := range []User{
		{ID: "u1", Email: "alice@example.com", Name: "Alice"},
		{ID: "u2", Email: "Bob@Example.com", Name: "Bob"},
		{ID: "u3", Email: "carol@example.com"},
	} {
		if err := store.PutUser(ctx, u); err != nil {
			t.Fatal(err)
		}
	}
	return svc, store, n
}

func TestService_Add(t *testing.T) {
	ctx := context.Background()

	t.Run("sent", func(t *testing.T) {
		svc, store, n := newTestService(t)
		msg, err := svc.Add(ctx, "u1", "bob@example.com")
		if err != nil {
			t.Fatal(err)
		}
		if msg != MsgSent {
			t.Errorf("msg = %q", msg)
		}
		reqs, _ := store.Incoming(ctx, "u2")
		if len(reqs) != 1 || reqs[0].From != "u1" || reqs[0].FromEmail != "alice@example.com" {
			t.Errorf("incoming = %+v", reqs)
		}
		if len(n.sent) != 1 || n.sent[0] != "u1->u2" {
			t.Errorf("notifications = %v", n.sent)
		}
	})

	t.Run("duplicate", func(t *testing.T) {
		svc, _, n := newTestService(t)
		if _, err := svc.Add(ctx, "u1", "carol@example.com"); err != nil {
			t.Fatal(err)
		}
		msg, _ := svc.Add(ctx, "u1", "CAROL@example.com")
		if msg != MsgAlreadySent {
			t.Errorf("msg = %q", msg)
		}
		if len(n.sent) != 1 {
			t.Errorf("notified %d times", len(n.sent))
		}
	})

	t.Run("rules", func(t *testing.T) {
		svc, store, _ := newTestService(t)
		_ = store.AddFriends(ctx, "u1", "u3")

		tests := []struct {
			name, from, email, want string
		}{
			{"signed out", "", "bob@example.com", MsgSignedOut},
			{"unknown requester", "ghost", "bob@example.com", MsgSignedOut},
			{"no such user", "u1", "nobody@example.com", MsgNoSuchUser},
			{"self", "u1", "Alice@Example.com", MsgSelf},
			{"already friends", "u3", "alice@example.com", MsgAlreadyFriends},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				msg, err := svc.Add(ctx, tt.from, tt.email)
				if err != nil {
					t.Fatal(err)
				}
				if msg != tt.want {
					t.Errorf("msg = %q, want %q", msg, tt.want)
				}
			})
		}
	})

	t.Run("notify failure still sent", func(t *testing.T) {
		svc, _, n := newTestService(t)
		n.err = errors.New("smtp down")
		msg, err := svc.Add(ctx, "u2", "alice@example.com")
		if err != nil || msg != MsgSent {
			t.Errorf("msg=%q err=%v", msg, err)
		}
	})
}

type failingStore struct {
	*MemoryStore
}

func (failingStore) AddIncoming(context.Context, Request) (bool, error) {
	return false, errors.New("disk full")
}

func TestService_StoreErrorPropagates(t *testing.T) {
	mem := NewMemoryStore()
	ctx := context.Background()
	_ = mem.PutUser(ctx, User{ID: "a", Email: "a@example.com"})
	_ = mem.PutUser(ctx, User{ID: "b", Email: "b@example.com"})

	svc := NewService(failingStore{mem}, nil, nil)
	if _, err := svc.For("a").SendFriendRequest(ctx, "b@example.com"); err == nil {
		t.Fatal("expected store error")
	}
}

func TestService_Seed(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	n, err := svc.Seed(ctx, []User{
		{Email: "alice@example.com"},
		{Email: "dave@example.com", Name: "Dave"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("seeded %d, want 1", n)
	}
	u, err := store.UserByEmail(ctx, "dave@example.com")
	if err != nil || u.ID == "" {
		t.Errorf("dave = %+v, err = %v", u, err)
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Friend@Example.COM "); got != "friend@example.com" {
		t.Errorf("NormalizeEmail = %q", got)
	}
}

func TestService_UsersSortedByEmail(t *testing.T) {
	svc, _, _ := newTestService(t)
	users, err := svc.Users(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, u := range users {
		got = append(got, u.ID)
	}
	// "Bob@Example.com" sorts before the lowercase addresses.
	want := []string{"u2", "u1", "u3"}
	if len(got) != len(want) {
		t.Fatalf("users = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("users = %v, want %v", got, want)
		}
	}
}

func TestService_ConcurrentAddSendsOnce(t *testing.T) {
	svc, store, n := newTestService(t)
	ctx := context.Background()

	const callers = 8
	msgs := make(chan string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg, err := svc.Add(ctx, "u1", "bob@example.com")
			if err != nil {
				msg = err.Error()
			}
			msgs <- msg
		}()
	}
	wg.Wait()
	close(msgs)

	counts := map[string]int{}
	for m := range msgs {
		counts[m]++
	}
	if counts[MsgSent] != 1 || counts[MsgAlreadySent] != callers-1 {
		t.Errorf("messages = %v", counts)
	}
	if reqs, _ := store.Incoming(ctx, "u2"); len(reqs) != 1 {
		t.Errorf("stored %d requests", len(reqs))
	}
	if len(n.sent) != 1 {
		t.Errorf("notified %d times", len(n.sent))
	}
}

func TestService_SeedFriends(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.SeedFriends(ctx, [][2]string{{"alice@example.com", "BOB@example.com"}}); err != nil {
		t.Fatal(err)
	}
	if msg, _ := svc.Add(ctx, "u2", "alice@example.com"); msg != MsgAlreadyFriends {
		t.Errorf("msg = %q", msg)
	}

	tests := []struct {
		name string
		pair [2]string
	}{
		{"unknown user", [2]string{"alice@example.com", "nobody@example.com"}},
		{"self", [2]string{"alice@example.com", "Alice@Example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := svc.SeedFriends(ctx, [][2]string{tt.pair}); err == nil {
				t.Error("expected error")
			}
		})
	}
}
