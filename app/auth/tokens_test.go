package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lifemonitor/app/cache"
	"lifemonitor/app/db"
	"lifemonitor/app/objects"
	"lifemonitor/pkg/contextx"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const testDBPath = "/tmp/lifemonitor-auth-test.db"

var setupOnce sync.Once

func setupDB(t *testing.T) *contextx.Context {
	setupOnce.Do(func() {
		_ = os.Remove(testDBPath)
		require.NoError(t, db.Init(&db.Config{Connection: "sqlite://" + testDBPath}))
		require.NoError(t, db.Migrate())
	})
	return contextx.NewContext()
}

func tokenServer(t *testing.T, hits *int32) *httptest.Server {
	return slowTokenServer(t, hits, 0)
}

func slowTokenServer(t *testing.T, hits *int32, delay time.Duration) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		time.Sleep(delay)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "refresh-1", r.PostForm.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "fresh-token",
			"refresh_token": "refresh-2",
			"token_type":    "bearer",
			"expires_in":    3600,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newIdentity(t *testing.T, ctx *contextx.Context, provider string, expiresAt int64) *objects.OAuthIdentity {
	userID := uuid.NewString()
	identity := objects.NewOAuthIdentity(userID, provider, uuid.NewString(), "jdoe")
	require.NoError(t, identity.SetToken("read", &objects.Token{
		AccessToken:  "stale-token",
		RefreshToken: "refresh-1",
		TokenType:    "bearer",
		ExpiresAt:    expiresAt,
	}, true))
	require.NoError(t, identity.Save(ctx))
	return identity
}

func newManager(srv *httptest.Server, opts ...Option) *Manager {
	opts = append([]Option{
		WithHTTPClient(srv.Client()),
		WithProvider("wfhub", &oauth2.Config{
			ClientID:     "lm",
			ClientSecret: "secret",
			Endpoint:     oauth2.Endpoint{TokenURL: srv.URL, AuthStyle: oauth2.AuthStyleInParams},
		}),
	}, opts...)
	return NewManager(cache.New(cache.NewMemoryBackend()), opts...)
}

func TestToken_Valid(t *testing.T) {
	asserter := assert.New(t)
	ctx := setupDB(t)
	var hits int32
	manager := newManager(tokenServer(t, &hits))

	identity := newIdentity(t, ctx, "wfhub", time.Now().Add(time.Hour).Unix())
	token, err := manager.Token(ctx, identity.UserID, "wfhub")
	if asserter.NoError(err) {
		asserter.Equal("stale-token", token)
	}
	asserter.EqualValues(0, atomic.LoadInt32(&hits))

	token, err = manager.Token(ctx, uuid.NewString(), "wfhub")
	asserter.NoError(err)
	asserter.Empty(token)
}

func TestToken_RefreshedOnce(t *testing.T) {
	asserter := assert.New(t)
	ctx := setupDB(t)
	var hits int32
	manager := newManager(tokenServer(t, &hits))

	identity := newIdentity(t, ctx, "wfhub", time.Now().Add(-time.Minute).Unix())

	var wg sync.WaitGroup
	tokens := make([]string, 4)
	errs := make([]error, 4)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = manager.Token(contextx.NewContext(), identity.UserID, "wfhub")
		}(i)
	}
	wg.Wait()
	for i := range tokens {
		asserter.NoError(errs[i])
		asserter.Equal("fresh-token", tokens[i])
	}
	asserter.EqualValues(1, atomic.LoadInt32(&hits))

	stored, err := objects.QueryIdentityByID(ctx, identity.ID)
	require.NoError(t, err)
	tok, err := stored.GetToken("unknown-scope")
	if asserter.NoError(err) && asserter.NotNil(tok) {
		asserter.Equal("fresh-token", tok.AccessToken)
		asserter.Equal("refresh-2", tok.RefreshToken)
		asserter.True(tok.Expiry().After(time.Now()))
	}
}

func TestToken_UnknownProvider(t *testing.T) {
	ctx := setupDB(t)
	var hits int32
	manager := newManager(tokenServer(t, &hits))

	identity := newIdentity(t, ctx, "other", time.Now().Add(-time.Minute).Unix())
	_, err := manager.Token(ctx, identity.UserID, "other")
	assert.Error(t, err)
}

func TestToken_RefreshNotSavedAfterLockExpiry(t *testing.T) {
	asserter := assert.New(t)
	ctx := setupDB(t)
	var hits int32
	manager := newManager(slowTokenServer(t, &hits, 150*time.Millisecond), WithLockHold(50*time.Millisecond))

	identity := newIdentity(t, ctx, "wfhub", time.Now().Add(-time.Minute).Unix())
	_, err := manager.Token(ctx, identity.UserID, "wfhub")
	asserter.ErrorIs(err, cache.ErrLockLost)
	asserter.EqualValues(1, atomic.LoadInt32(&hits))

	stored, err := objects.QueryIdentityByID(ctx, identity.ID)
	require.NoError(t, err)
	tok, err := stored.GetToken("read")
	if asserter.NoError(err) && asserter.NotNil(tok) {
		asserter.Equal("stale-token", tok.AccessToken)
		asserter.Equal("refresh-1", tok.RefreshToken)
	}
}
