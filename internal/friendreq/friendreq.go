// Package friendreq records incoming friend requests. It is the
// collaborator the add-friend form hands a validated email to; every call
// resolves to a short, user-facing message.
package friendreq

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// Outcome messages returned to the form.
const (
	MsgSent           = "Friend request sent"
	MsgSignedOut      = "You must be signed in to add friends"
	MsgNoSuchUser     = "No user found with that email"
	MsgSelf           = "You cannot add yourself as a friend"
	MsgAlreadyFriends = "You are already friends with this user"
	MsgAlreadySent    = "Friend request already sent"
)

// ErrNotFound is returned by a Store when a user does not exist.
var ErrNotFound = errors.New("friendreq: not found")

// User is a registered account that can send and receive requests.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Request is one pending incoming friend request.
type Request struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	FromEmail string    `json:"from_email"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists users, friendships and pending requests.
type Store interface {
	UserByEmail(ctx context.Context, email string) (User, error)
	UserByID(ctx context.Context, id string) (User, error)
	PutUser(ctx context.Context, u User) error
	Users(ctx context.Context) ([]User, error)
	AreFriends(ctx context.Context, a, b string) (bool, error)
	AddFriends(ctx context.Context, a, b string) error
	// AddIncoming stores req unless req.From already has a pending request
	// to req.To. It reports whether req was stored.
	AddIncoming(ctx context.Context, req Request) (bool, error)
	Incoming(ctx context.Context, to string) ([]Request, error)
	Ping(ctx context.Context) error
}

// NormalizeEmail is the lookup key for an address: trimmed and case
// folded, so Friend@Example.com and friend@example.com are one account.
// A Caser is stateful, so each call gets its own.
func NormalizeEmail(email string) string {
	return cases.Fold().String(strings.TrimSpace(email))
}
