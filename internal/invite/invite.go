// Package invite implements the invite-link supplement from SPEC_FULL.md
// Part D.1: a short-lived code that resolves to a room ID and can be redeemed
// any number of times until its TTL expires. Redeeming a code only reveals
// the room ID; joinRoom still applies the room's invitee and password rules.
//
// Grounded on the teacher's services/invite_service.go (InviteService),
// dropping its unused *sql.DB field (the teacher never reads or writes it)
// since Redis alone is the source of truth for link state.
package invite

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrInvalidOrExpired is returned when a code is unknown or has expired.
var ErrInvalidOrExpired = errors.New("invite: invalid or expired code")

const keyPrefix = "invite:"

// Service issues and redeems invite codes backed by Redis TTLs.
type Service struct {
	client *redis.Client
}

func New(client *redis.Client) *Service {
	return &Service{client: client}
}

// Link is what a redeemed code resolves to.
type Link struct {
	RoomID string
}

func generateCode() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Create mints a new code bound to roomID, valid for ttl.
func (s *Service) Create(ctx context.Context, roomID string, ttl time.Duration) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("invite: generating code: %w", err)
	}
	key := keyPrefix + code
	if err := s.client.Set(ctx, key, roomID, ttl).Err(); err != nil {
		return "", fmt.Errorf("invite: storing code: %w", err)
	}
	return code, nil
}

// Redeem looks up the room ID for a code. The code remains valid until its
// TTL expires; unlike a single-use token, redeeming it doesn't consume it,
// matching the teacher's UseInviteLink (a GET, not a GETDEL).
func (s *Service) Redeem(ctx context.Context, code string) (*Link, error) {
	roomID, err := s.client.Get(ctx, keyPrefix+code).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrInvalidOrExpired
	}
	if err != nil {
		return nil, fmt.Errorf("invite: redeeming code: %w", err)
	}
	return &Link{RoomID: roomID}, nil
}

// Revoke deletes a code before its TTL elapses, e.g. when a room is deleted.
func (s *Service) Revoke(ctx context.Context, code string) error {
	return s.client.Del(ctx, keyPrefix+code).Err()
}
