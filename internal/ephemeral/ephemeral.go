// Package ephemeral holds every short-lived artifact of the
// authorization flow in Redis: CSRF tokens, pending scope sets,
// authorization codes, access/refresh tokens and the per-client token
// pair index. Nothing here is durable; correctness under concurrent
// redemption relies on Redis's atomic single-key operations, with
// GETDEL as the single-use guard for codes and CSRF tokens.
package ephemeral

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "oauth:"

// ErrNotFound is returned when a key is absent or already expired.
var ErrNotFound = errors.New("ephemeral record not found")

type Store struct {
	client redis.UniversalClient
}

func New(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

func csrfKey(oauthUUID, userUUID string) string {
	return keyPrefix + "csrf:" + oauthUUID + ":" + userUUID
}

func pendingScopesKey(oauthUUID, userUUID string) string {
	return keyPrefix + "scope:" + oauthUUID + ":" + userUUID
}

func authCodeKey(code string) string {
	return keyPrefix + "code:" + code
}

func accessTokenKey(token string) string {
	return keyPrefix + "access:" + token
}

func refreshTokenKey(token string) string {
	return keyPrefix + "refresh:" + token
}

func pairKey(clientID, userUUID string) string {
	return keyPrefix + "pair:" + clientID + ":" + userUUID
}

// SaveCSRFToken binds a consent-view nonce to (oauthUUID, userUUID).
// Re-rendering the view overwrites the previous nonce.
func (s *Store) SaveCSRFToken(ctx context.Context, oauthUUID, userUUID, token string, ttl time.Duration) error {
	if err := s.client.Set(ctx, csrfKey(oauthUUID, userUUID), token, ttl).Err(); err != nil {
		return fmt.Errorf("could not persist csrf token: %w", err)
	}
	return nil
}

// ConsumeCSRFToken returns the stored nonce and deletes it in one
// atomic step, so a nonce can never be redeemed twice.
func (s *Store) ConsumeCSRFToken(ctx context.Context, oauthUUID, userUUID string) (string, error) {
	token, err := s.client.GetDel(ctx, csrfKey(oauthUUID, userUUID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("could not consume csrf token: %w", err)
	}
	return token, nil
}

// SavePendingScopes records the space-joined scope set the user was
// shown, so the grant written later reflects exactly that set.
func (s *Store) SavePendingScopes(ctx context.Context, oauthUUID, userUUID, scopes string, ttl time.Duration) error {
	if err := s.client.Set(ctx, pendingScopesKey(oauthUUID, userUUID), scopes, ttl).Err(); err != nil {
		return fmt.Errorf("could not persist pending scopes: %w", err)
	}
	return nil
}

func (s *Store) PendingScopes(ctx context.Context, oauthUUID, userUUID string) (string, error) {
	scopes, err := s.client.Get(ctx, pendingScopesKey(oauthUUID, userUUID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("could not load pending scopes: %w", err)
	}
	return scopes, nil
}

// SaveAuthCode maps an authorization code to the user who approved it.
func (s *Store) SaveAuthCode(ctx context.Context, code, userUUID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, authCodeKey(code), userUUID, ttl).Err(); err != nil {
		return fmt.Errorf("could not persist authorization code: %w", err)
	}
	return nil
}

// ConsumeAuthCode resolves and deletes a code atomically. Concurrent
// exchanges of the same code race on this delete and only one of them
// observes the key.
func (s *Store) ConsumeAuthCode(ctx context.Context, code string) (string, error) {
	userUUID, err := s.client.GetDel(ctx, authCodeKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("could not consume authorization code: %w", err)
	}
	return userUUID, nil
}

// AccessRecord is stored under the access token itself.
type AccessRecord struct {
	ClientID     string `json:"clientID"`
	RefreshToken string `json:"refreshToken"`
	UserUUID     string `json:"userUUID"`
}

// RefreshRecord is stored under the refresh token itself. Refresh
// tokens carry no TTL; they live until rotated or revoked.
type RefreshRecord struct {
	AccessToken string `json:"accessToken"`
	UserUUID    string `json:"userUUID"`
}

type pairRecord struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// SaveTokenPair persists a fresh access/refresh pair plus the pair
// index for (clientID, userUUID). The access record expires with
// accessTTL; the refresh record and the index have no expiry.
func (s *Store) SaveTokenPair(ctx context.Context, clientID, userUUID, accessToken, refreshToken string, accessTTL time.Duration) error {
	access, err := json.Marshal(AccessRecord{
		ClientID:     clientID,
		RefreshToken: refreshToken,
		UserUUID:     userUUID,
	})
	if err != nil {
		return fmt.Errorf("could not encode access record: %w", err)
	}

	refresh, err := json.Marshal(RefreshRecord{
		AccessToken: accessToken,
		UserUUID:    userUUID,
	})
	if err != nil {
		return fmt.Errorf("could not encode refresh record: %w", err)
	}

	pair, err := json.Marshal(pairRecord{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})
	if err != nil {
		return fmt.Errorf("could not encode pair record: %w", err)
	}

	if err := s.client.Set(ctx, accessTokenKey(accessToken), access, accessTTL).Err(); err != nil {
		return fmt.Errorf("could not persist access token: %w", err)
	}
	if err := s.client.Set(ctx, refreshTokenKey(refreshToken), refresh, 0).Err(); err != nil {
		return fmt.Errorf("could not persist refresh token: %w", err)
	}
	if err := s.client.Set(ctx, pairKey(clientID, userUUID), pair, 0).Err(); err != nil {
		return fmt.Errorf("could not persist token pair index: %w", err)
	}

	return nil
}

func (s *Store) AccessToken(ctx context.Context, token string) (*AccessRecord, error) {
	b, err := s.client.Get(ctx, accessTokenKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("could not load access token: %w", err)
	}

	var record AccessRecord
	if err := json.Unmarshal(b, &record); err != nil {
		return nil, fmt.Errorf("could not decode access record: %w", err)
	}

	return &record, nil
}

func (s *Store) RefreshToken(ctx context.Context, token string) (*RefreshRecord, error) {
	b, err := s.client.Get(ctx, refreshTokenKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("could not load refresh token: %w", err)
	}

	var record RefreshRecord
	if err := json.Unmarshal(b, &record); err != nil {
		return nil, fmt.Errorf("could not decode refresh record: %w", err)
	}

	return &record, nil
}

// DeleteTokens removes token records directly, used when rotating a
// pair whose index entry is being replaced anyway.
func (s *Store) DeleteTokens(ctx context.Context, accessToken, refreshToken string) error {
	if err := s.client.Del(ctx, accessTokenKey(accessToken), refreshTokenKey(refreshToken)).Err(); err != nil {
		return fmt.Errorf("could not delete token records: %w", err)
	}
	return nil
}

// RevokePair deletes the live pair for (clientID, userUUID), if any,
// along with its index entry. A missing index is not an error: there is
// simply nothing to revoke.
func (s *Store) RevokePair(ctx context.Context, clientID, userUUID string) error {
	return s.revokePairByKey(ctx, pairKey(clientID, userUUID))
}

func (s *Store) revokePairByKey(ctx context.Context, key string) error {
	b, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not load token pair index: %w", err)
	}

	var pair pairRecord
	if err := json.Unmarshal(b, &pair); err != nil {
		return fmt.Errorf("could not decode pair record: %w", err)
	}

	if err := s.client.Del(ctx,
		accessTokenKey(pair.AccessToken),
		refreshTokenKey(pair.RefreshToken),
		key,
	).Err(); err != nil {
		return fmt.Errorf("could not revoke token pair: %w", err)
	}

	return nil
}

// RevokeAllPairs scans the pair index for every user of a client id and
// revokes each live pair. Used when an application is deleted.
func (s *Store) RevokeAllPairs(ctx context.Context, clientID string) error {
	pattern := pairKey(clientID, "*")

	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := s.revokePairByKey(ctx, iter.Val()); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("could not scan token pair index: %w", err)
	}

	return nil
}
