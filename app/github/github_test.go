package github

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifySignature(t *testing.T) {
	asserter := assert.New(t)
	body := []byte(`{"zen":"Keep it logically awesome."}`)
	header := Sign("secret", body)

	asserter.True(strings.HasPrefix(header, "sha256="))
	asserter.NoError(VerifySignature("secret", header, body))
	asserter.ErrorIs(VerifySignature("other", header, body), ErrInvalidSignature)
	asserter.ErrorIs(VerifySignature("secret", header, append(body, ' ')), ErrInvalidSignature)
	asserter.ErrorIs(VerifySignature("secret", "sha1="+header[7:], body), ErrInvalidSignature)
	asserter.ErrorIs(VerifySignature("secret", "sha256=zz", body), ErrInvalidSignature)
	asserter.ErrorIs(VerifySignature("secret", "", body), ErrMissingSignature)
}

func headers(kind string) http.Header {
	h := http.Header{}
	h.Set(HeaderEvent, kind)
	h.Set(HeaderDelivery, "delivery-1")
	h.Set(HeaderTargetID, "42")
	h.Set("Content-Type", "application/json")
	h.Set("User-Agent", "GitHub-Hookshot")
	return h
}

const pushPayload = `{
  "ref": "refs/heads/main",
  "before": "aaaa",
  "after": "bbbb",
  "created": false,
  "deleted": false,
  "forced": false,
  "pusher": {"name": "octocat"},
  "sender": {"id": 1, "login": "octocat"},
  "installation": {"id": 7},
  "repository": {"id": 3, "name": "wf", "full_name": "crs4/wf", "owner": {"id": 9, "login": "crs4"},
                 "clone_url": "https://github.com/crs4/wf.git", "default_branch": "main"}
}`

func TestParseEvent_Push(t *testing.T) {
	asserter := assert.New(t)
	e, err := ParseEvent(headers(EventPush), []byte(pushPayload))
	require.NoError(t, err)

	asserter.Equal("delivery-1", e.ID)
	asserter.Equal(EventPush, e.Type)
	asserter.Equal("42", e.InstallationTargetID)
	asserter.Equal(int64(7), e.InstallationID())
	asserter.Equal("crs4/wf", e.FullName())
	asserter.Equal("main", e.Branch())
	asserter.Equal("", e.Tag())
	asserter.Equal("bbbb", e.Rev())
	asserter.Equal("octocat", e.Pusher)
	asserter.False(e.IsBotBranch())
	asserter.Equal("application/json", e.Headers.Get("Content-Type"))
	asserter.Empty(e.Headers.Get("User-Agent"))
	asserter.JSONEq(pushPayload, string(e.Payload))
}

func TestParseEvent_Envelope(t *testing.T) {
	body := `{"payload": ` + pushPayload + `}`
	e, err := ParseEvent(headers(EventPush), []byte(body))
	require.NoError(t, err)
	assert.Equal(t, "crs4/wf", e.FullName())
}

func TestParseEvent_CreateAndDelete(t *testing.T) {
	asserter := assert.New(t)
	e, err := ParseEvent(headers(EventCreate), []byte(`{"ref": "v1.0.0", "ref_type": "tag", "repository": {"full_name": "crs4/wf"}}`))
	require.NoError(t, err)
	asserter.Equal("refs/tags/v1.0.0", e.Ref)
	asserter.Equal("v1.0.0", e.Tag())
	asserter.Equal("", e.Branch())
	asserter.True(e.Created)

	e, err = ParseEvent(headers(EventDelete), []byte(`{"ref": "develop", "ref_type": "branch", "repository": {"full_name": "crs4/wf"}}`))
	require.NoError(t, err)
	asserter.Equal("refs/heads/develop", e.Ref)
	asserter.Equal("develop", e.Branch())
	asserter.True(e.Deleted)
}

func TestParseEvent_Errors(t *testing.T) {
	_, err := ParseEvent(http.Header{}, []byte(pushPayload))
	assert.Error(t, err)
	_, err = ParseEvent(headers(EventPush), []byte(`not json`))
	assert.Error(t, err)
}

func TestEvent_BotChecks(t *testing.T) {
	asserter := assert.New(t)
	e := &Event{Type: EventPush, Ref: "refs/heads/lifemonitor-issue-abc"}
	asserter.True(e.IsBotBranch())
	e.Ref = "refs/heads/wizard-step-123"
	asserter.True(e.IsBotBranch())
	e.Ref = "refs/heads/main"
	asserter.False(e.IsBotBranch())

	e.Pusher = "lifemonitor"
	asserter.True(e.FromBot("lifemonitor[bot]"))
	asserter.False(e.FromBot("other[bot]"))
	asserter.False(e.FromBot(""))
}

func TestEvent_WorkflowResource(t *testing.T) {
	asserter := assert.New(t)
	body := `{"action": "completed",
	  "repository": {"full_name": "crs4/wf"},
	  "workflow": {"id": 5, "path": ".github/workflows/testing.yml"},
	  "workflow_run": {"id": 100, "run_attempt": 2, "path": ".github/workflows/testing.yml"}}`
	e, err := ParseEvent(headers(EventWorkflowRun), []byte(body))
	require.NoError(t, err)
	asserter.Equal("repos/crs4/wf/actions/workflows/testing.yml", e.WorkflowResource())
	asserter.Equal("100_2", e.RunBuildID())

	e.Workflow = nil
	asserter.Equal("repos/crs4/wf/actions/workflows/testing.yml", e.WorkflowResource())
	e.WorkflowRun = nil
	asserter.Equal("", e.WorkflowResource())
}

func newTestApp(t *testing.T, handler http.Handler) (*App, *rsa.PrivateKey) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewApp(99, key, WithBaseURL(srv.URL)), key
}

func TestApp_InstallationTokenIsCached(t *testing.T) {
	asserter := assert.New(t)
	var issued int32
	var key *rsa.PrivateKey
	mux := http.NewServeMux()
	mux.HandleFunc("/app/installations/7/access_tokens", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&issued, 1)
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		claims := &jwt.RegisteredClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
			return &key.PublicKey, nil
		}, jwt.WithValidMethods([]string{"RS256"}))
		if err != nil || claims.Issuer != "99" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"token":      "inst-token",
			"expires_at": time.Now().Add(time.Hour).Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/repos/crs4/wf", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer inst-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"id": 3, "full_name": "crs4/wf", "default_branch": "main"}`)
	})
	app, k := newTestApp(t, mux)
	key = k

	client := app.Client(7)
	for i := 0; i < 3; i++ {
		repo, err := client.Repository(context.Background(), "crs4/wf")
		require.NoError(t, err)
		asserter.Equal("main", repo.DefaultBranch)
	}
	asserter.Equal(int32(1), atomic.LoadInt32(&issued))

	_, err := client.Repository(context.Background(), "crs4/missing")
	asserter.ErrorIs(err, ErrNotFound)
}

func TestClient_PutFile(t *testing.T) {
	asserter := assert.New(t)
	var put map[string]string
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/crs4/wf/contents/ro-crate-metadata.json", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			asserter.Equal("lifemonitor-issue-x", r.URL.Query().Get("ref"))
			_, _ = io.WriteString(w, `{"sha": "old-sha"}`)
		case http.MethodPut:
			_ = json.NewDecoder(r.Body).Decode(&put)
			w.WriteHeader(http.StatusOK)
			_, _ = io.WriteString(w, `{}`)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewTokenClient(srv.URL, "t")
	err := client.PutFile(context.Background(), "crs4/wf", "lifemonitor-issue-x", "ro-crate-metadata.json", []byte("{}"), "add crate")
	require.NoError(t, err)
	asserter.Equal("old-sha", put["sha"])
	asserter.Equal("lifemonitor-issue-x", put["branch"])
	asserter.Equal(base64.StdEncoding.EncodeToString([]byte("{}")), put["content"])
}

func TestClient_IssuesSkipPullRequests(t *testing.T) {
	asserter := assert.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		asserter.Equal("lifemonitor[bot]", r.URL.Query().Get("creator"))
		_, _ = io.WriteString(w, `[{"number": 1, "title": "a"}, {"number": 2, "title": "b", "pull_request": {"url": "x"}}]`)
	}))
	defer srv.Close()

	issues, err := NewTokenClient(srv.URL, "t").Issues(context.Background(), "crs4/wf", "open", "lifemonitor[bot]")
	require.NoError(t, err)
	if asserter.Len(issues, 1) {
		asserter.Equal(1, issues[0].Number)
	}
}
