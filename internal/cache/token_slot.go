package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"stocksync-api/internal/model"
)

// TokenSlotKey is the cache key of the single remote session token slot.
const TokenSlotKey = "remote:session_token"

// TokenSlot is the process-wide single-slot holder for the remote session token.
// It is safe for concurrent use; replacement is compare-and-swap so a refresh
// never clobbers a token another task stored in the meantime.
type TokenSlot struct {
	cache Cache
}

// NewTokenSlot creates a token slot over the given cache.
func NewTokenSlot(c Cache) *TokenSlot {
	return &TokenSlot{cache: c}
}

// Load returns the cached token, or nil when the slot is empty.
func (s *TokenSlot) Load(ctx context.Context) (*model.RemoteSessionToken, error) {
	raw, err := s.cache.Get(ctx, TokenSlotKey)
	if errors.Is(err, ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token slot: %w", err)
	}

	var tok model.RemoteSessionToken
	if err := json.Unmarshal(raw, &tok); err != nil {
		// An unreadable slot is treated as empty and overwritten on the next refresh.
		_ = s.cache.Delete(ctx, TokenSlotKey)
		return nil, nil
	}
	return &tok, nil
}

// Replace stores next if the slot still holds prev (nil prev means empty).
// It reports whether this call won the swap; losing is not an error.
func (s *TokenSlot) Replace(ctx context.Context, prev, next *model.RemoteSessionToken) (bool, error) {
	nextRaw, err := json.Marshal(next)
	if err != nil {
		return false, fmt.Errorf("failed to serialize token: %w", err)
	}

	var prevRaw []byte
	if prev != nil {
		current, err := s.cache.Get(ctx, TokenSlotKey)
		if err != nil && !errors.Is(err, ErrCacheMiss) {
			return false, fmt.Errorf("failed to read token slot: %w", err)
		}
		var cur model.RemoteSessionToken
		if current == nil || json.Unmarshal(current, &cur) != nil || cur.Value != prev.Value {
			return false, nil
		}
		prevRaw = current
	}

	swapped, err := s.cache.CompareAndSwap(ctx, TokenSlotKey, prevRaw, nextRaw)
	if err != nil {
		return false, fmt.Errorf("failed to replace token: %w", err)
	}
	return swapped, nil
}

// Clear empties the slot so the next lookup forces re-authorization.
func (s *TokenSlot) Clear(ctx context.Context) error {
	if err := s.cache.Delete(ctx, TokenSlotKey); err != nil {
		return fmt.Errorf("failed to clear token slot: %w", err)
	}
	return nil
}
