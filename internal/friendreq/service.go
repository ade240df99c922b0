package friendreq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service applies the friend-request rules on top of a Store.
type Service struct {
	store    Store
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

// NewService builds a Service. notifier and logger may be nil.
func NewService(store Store, notifier Notifier, logger *zap.Logger) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Store returns the backing store.
func (s *Service) Store() Store { return s.store }

// Add records a request from requesterID to the user registered under
// email and returns the message to show. The error is non-nil only when
// the store fails; rule violations are reported through the message.
func (s *Service) Add(ctx context.Context, requesterID, email string) (string, error) {
	if requesterID == "" {
		return MsgSignedOut, nil
	}
	from, err := s.store.UserByID(ctx, requesterID)
	if errors.Is(err, ErrNotFound) {
		return MsgSignedOut, nil
	}
	if err != nil {
		return "", err
	}

	to, err := s.store.UserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return MsgNoSuchUser, nil
	}
	if err != nil {
		return "", err
	}
	if to.ID == from.ID {
		return MsgSelf, nil
	}

	friends, err := s.store.AreFriends(ctx, from.ID, to.ID)
	if err != nil {
		return "", err
	}
	if friends {
		return MsgAlreadyFriends, nil
	}

	req := Request{
		ID:        s.newID(),
		From:      from.ID,
		To:        to.ID,
		FromEmail: from.Email,
		CreatedAt: s.now().UTC(),
	}
	added, err := s.store.AddIncoming(ctx, req)
	if err != nil {
		return "", fmt.Errorf("store request: %w", err)
	}
	if !added {
		return MsgAlreadySent, nil
	}
	s.logger.Info("friend request stored",
		zap.String("request_id", req.ID),
		zap.String("from", from.ID),
		zap.String("to", to.ID))

	if err := s.notifier.NotifyRequest(ctx, from, to); err != nil {
		s.logger.Warn("friend request notification failed",
			zap.String("request_id", req.ID),
			zap.Error(err))
	}
	return MsgSent, nil
}

// Incoming lists the pending requests addressed to userID.
func (s *Service) Incoming(ctx context.Context, userID string) ([]Request, error) {
	return s.store.Incoming(ctx, userID)
}

// Users lists the registered users ordered by email.
func (s *Service) Users(ctx context.Context) ([]User, error) {
	return s.store.Users(ctx)
}

// For binds the service to a requester. The result satisfies the form's
// Sender interface.
func (s *Service) For(requesterID string) *Bound {
	return &Bound{svc: s, requesterID: requesterID}
}

// Bound is a Service call site fixed to one requester.
type Bound struct {
	svc         *Service
	requesterID string
}

func (b *Bound) SendFriendRequest(ctx context.Context, email string) (string, error) {
	return b.svc.Add(ctx, b.requesterID, email)
}

// Seed stores users, skipping any whose email is already registered.
func (s *Service) Seed(ctx context.Context, users []User) (int, error) {
	n := 0
	for _, u := range users {
		if _, err := s.store.UserByEmail(ctx, u.Email); err == nil {
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return n, err
		}
		if u.ID == "" {
			u.ID = s.newID()
		}
		if err := s.store.PutUser(ctx, u); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// SeedFriends makes each pair of registered emails friends. Both users
// must already exist.
func (s *Service) SeedFriends(ctx context.Context, pairs [][2]string) error {
	for _, p := range pairs {
		a, err := s.store.UserByEmail(ctx, p[0])
		if err != nil {
			return fmt.Errorf("friend %s: %w", p[0], err)
		}
		b, err := s.store.UserByEmail(ctx, p[1])
		if err != nil {
			return fmt.Errorf("friend %s: %w", p[1], err)
		}
		if a.ID == b.ID {
			return fmt.Errorf("friend %s: cannot befriend self", p[0])
		}
		if err := s.store.AddFriends(ctx, a.ID, b.ID); err != nil {
			return err
		}
	}
	return nil
}
