package friendreq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps users and requests in Redis:
//
//	<prefix>users                                -> set of user ids
//	<prefix>user:email:<folded email>            -> user id
//	<prefix>user:<id>                            -> user JSON
//	<prefix>user:<id>:friends                    -> set of user ids
//	<prefix>user:<id>:incoming_friend_requests   -> hash from-id -> request JSON
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// maxTxRetries bounds optimistic-lock retries in PutUser.
const maxTxRetries = 5

// NewRedisStore wraps an existing client. prefix may be empty.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// ConnectRedis parses a redis:// or rediss:// URL, pings the server within
// timeout, and returns the client. The caller closes it.
func ConnectRedis(url string, timeout time.Duration) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (s *RedisStore) emailKey(email string) string {
	return s.prefix + "user:email:" + NormalizeEmail(email)
}
func (s *RedisStore) userKey(id string) string    { return s.prefix + "user:" + id }
func (s *RedisStore) friendsKey(id string) string { return s.prefix + "user:" + id + ":friends" }
func (s *RedisStore) incomingKey(id string) string {
	return s.prefix + "user:" + id + ":incoming_friend_requests"
}

func (s *RedisStore) UserByEmail(ctx context.Context, email string) (User, error) {
	id, err := s.client.Get(ctx, s.emailKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup email: %w", err)
	}
	return s.UserByID(ctx, id)
}

func (s *RedisStore) UserByID(ctx context.Context, id string) (User, error) {
	b, err := s.client.Get(ctx, s.userKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("load user %s: %w", id, err)
	}
	var u User
	if err := json.Unmarshal(b, &u); err != nil {
		return User{}, fmt.Errorf("decode user %s: %w", id, err)
	}
	return u, nil
}

// PutUser stores u and moves its email index entry when the email changed.
func (s *RedisStore) PutUser(ctx context.Context, u User) error {
	b, err := json.Marshal(u)
	if err != nil {
		return err
	}
	key := s.userKey(u.ID)
	put := func(tx *redis.Tx) error {
		var stale string
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			var old User
			if err := json.Unmarshal(raw, &old); err != nil {
				return fmt.Errorf("decode user %s: %w", u.ID, err)
			}
			if NormalizeEmail(old.Email) != NormalizeEmail(u.Email) {
				stale = s.emailKey(old.Email)
			}
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			if stale != "" {
				p.Del(ctx, stale)
			}
			p.Set(ctx, key, b, 0)
			p.Set(ctx, s.emailKey(u.Email), u.ID, 0)
			p.SAdd(ctx, s.prefix+"users", u.ID)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err = s.client.Watch(ctx, put, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("put user %s: %w", u.ID, err)
	}
	return nil
}

func (s *RedisStore) Users(ctx context.Context) ([]User, error) {
	ids, err := s.client.SMembers(ctx, s.prefix+"users").Result()
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]User, 0, len(ids))
	for _, id := range ids {
		u, err := s.UserByID(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (s *RedisStore) AreFriends(ctx context.Context, a, b string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.friendsKey(a), b).Result()
	if err != nil {
		return false, fmt.Errorf("check friends: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) AddFriends(ctx context.Context, a, b string) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, s.friendsKey(a), b)
		p.SAdd(ctx, s.friendsKey(b), a)
		return nil
	})
	if err != nil {
		return fmt.Errorf("add friends: %w", err)
	}
	return nil
}

func (s *RedisStore) AddIncoming(ctx context.Context, req Request) (bool, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return false, err
	}
	added, err := s.client.HSetNX(ctx, s.incomingKey(req.To), req.From, b).Result()
	if err != nil {
		return false, fmt.Errorf("add incoming: %w", err)
	}
	return added, nil
}

// Incoming returns pending requests, oldest first.
func (s *RedisStore) Incoming(ctx context.Context, to string) ([]Request, error) {
	m, err := s.client.HGetAll(ctx, s.incomingKey(to)).Result()
	if err != nil {
		return nil, fmt.Errorf("list incoming: %w", err)
	}
	out := make([]Request, 0, len(m))
	for from, raw := range m {
		var r Request
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("decode request from %s: %w", from, err)
		}
		out = append(out, r)
	}
	sortRequests(out)
	return out, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
