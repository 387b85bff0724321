package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKV struct {
	mu     sync.Mutex
	data   map[string]string
	broken bool
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string]string)}
}

func (f *fakeKV) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broken {
		return "", errors.New("connection refused")
	}
	val, ok := f.data[key]
	if !ok {
		return "", errKVMiss
	}
	return val, nil
}

func (f *fakeKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broken {
		return errors.New("connection refused")
	}
	f.data[key] = value
	return nil
}

func (f *fakeKV) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

type fakeRepo struct {
	mu          sync.Mutex
	blacklisted map[string]*BlacklistedToken
	refresh     map[string]*RefreshToken
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		blacklisted: make(map[string]*BlacklistedToken),
		refresh:     make(map[string]*RefreshToken),
	}
}

func (f *fakeRepo) InsertBlacklisted(ctx context.Context, token *BlacklistedToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.blacklisted[token.TokenHash]; !exists {
		f.blacklisted[token.TokenHash] = token
	}
	return nil
}

func (f *fakeRepo) IsBlacklisted(ctx context.Context, tokenHash string) (*BlacklistedToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token, ok := f.blacklisted[tokenHash]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return token, nil
}

func (f *fakeRepo) InsertRefresh(ctx context.Context, token *RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[token.TokenHash] = token
	return nil
}

func (f *fakeRepo) GetRefresh(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token, ok := f.refresh[tokenHash]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return token, nil
}

func (f *fakeRepo) RevokeRefreshForUser(ctx context.Context, userID uuid.UUID) ([]RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var revoked []RefreshToken
	for _, t := range f.refresh {
		if t.UserID == userID && !t.Revoked {
			t.Revoked = true
			revoked = append(revoked, *t)
		}
	}
	return revoked, nil
}

func (f *fakeRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for hash, t := range f.blacklisted {
		if t.ExpiresAt.Before(now) {
			delete(f.blacklisted, hash)
			n++
		}
	}
	for hash, t := range f.refresh {
		if t.ExpiresAt.Before(now) {
			delete(f.refresh, hash)
			n++
		}
	}
	return n, nil
}

func TestBlacklistThenCheck(t *testing.T) {
	kv := newFakeKV()
	repo := newFakeRepo()
	g := newGateWithKV(repo, kv)
	ctx := context.Background()
	userID := uuid.New()

	assert.False(t, g.IsBlacklisted(ctx, "token-abc"))

	err := g.Blacklist(ctx, "token-abc", userID, time.Now().Add(15*time.Minute))
	require.NoError(t, err)

	assert.True(t, g.IsBlacklisted(ctx, "token-abc"))
	assert.False(t, g.IsBlacklisted(ctx, "token-other"))
}

func TestBlacklistReadThroughRepopulatesKV(t *testing.T) {
	kv := newFakeKV()
	repo := newFakeRepo()
	g := newGateWithKV(repo, kv)
	ctx := context.Background()
	userID := uuid.New()

	// Seed the DB only, as if the KV entry had been lost
	hash := HashToken("token-abc")
	require.NoError(t, repo.InsertBlacklisted(ctx, &BlacklistedToken{
		TokenHash: hash,
		UserID:    userID,
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}))

	assert.True(t, g.IsBlacklisted(ctx, "token-abc"))
	assert.NotEmpty(t, kv.data, "read-through should repopulate the cache")
}

func TestBlacklistFailsOpenOnKVOutage(t *testing.T) {
	kv := newFakeKV()
	kv.broken = true
	repo := newFakeRepo()
	g := newGateWithKV(repo, kv)
	ctx := context.Background()

	// Unknown token with a dead cache is allowed through
	assert.False(t, g.IsBlacklisted(ctx, "token-abc"))

	// A token the DB knows about is still caught
	hash := HashToken("token-revoked")
	require.NoError(t, repo.InsertBlacklisted(ctx, &BlacklistedToken{
		TokenHash: hash,
		UserID:    uuid.New(),
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}))
	assert.True(t, g.IsBlacklisted(ctx, "token-revoked"))
}

func TestRefreshLifecycle(t *testing.T) {
	kv := newFakeKV()
	repo := newFakeRepo()
	g := newGateWithKV(repo, kv)
	ctx := context.Background()
	userID := uuid.New()
	expiresAt := time.Now().Add(24 * time.Hour)

	info, err := g.GetRefresh(ctx, "refresh-1")
	require.NoError(t, err)
	assert.Nil(t, info)

	require.NoError(t, g.CacheRefresh(ctx, "refresh-1", userID, expiresAt))

	info, err = g.GetRefresh(ctx, "refresh-1")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, userID, info.UserID)
	assert.False(t, info.Revoked)
}

func TestRevokeAllForUser(t *testing.T) {
	kv := newFakeKV()
	repo := newFakeRepo()
	g := newGateWithKV(repo, kv)
	ctx := context.Background()
	userID := uuid.New()
	otherID := uuid.New()
	expiresAt := time.Now().Add(24 * time.Hour)

	require.NoError(t, g.CacheRefresh(ctx, "refresh-1", userID, expiresAt))
	require.NoError(t, g.CacheRefresh(ctx, "refresh-2", userID, expiresAt))
	require.NoError(t, g.CacheRefresh(ctx, "refresh-other", otherID, expiresAt))

	require.NoError(t, g.RevokeAllForUser(ctx, userID))

	// Revoked tokens resolve through the DB and come back revoked
	info, err := g.GetRefresh(ctx, "refresh-1")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.True(t, info.Revoked)

	// The other user's token is untouched
	info, err = g.GetRefresh(ctx, "refresh-other")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.False(t, info.Revoked)
}

func TestHashTokenIsStableAndOpaque(t *testing.T) {
	h1 := HashToken("some-jwt")
	h2 := HashToken("some-jwt")
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
	assert.NotContains(t, h1, "some-jwt")
}
