package registry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"lifemonitor/app/config"
	"lifemonitor/pkg/problem"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seekServer struct {
	*httptest.Server

	mu      sync.Mutex
	auth    []string
	uploads map[string][]byte
	patched []string
	deleted []string
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", jsonAPI)
	_ = json.NewEncoder(w).Encode(v)
}

func workflowData(id, title, uuid string) map[string]interface{} {
	return map[string]interface{}{
		"id":   id,
		"type": "workflows",
		"attributes": map[string]interface{}{
			"title":    title,
			"version":  2,
			"versions": []interface{}{map[string]interface{}{"version": 1}, map[string]interface{}{"version": 2}},
		},
		"meta": map[string]interface{}{"uuid": uuid},
		"relationships": map[string]interface{}{
			"submitter": map[string]interface{}{"data": []interface{}{map[string]string{"id": "5"}}},
		},
	}
}

func newSeekServer(t *testing.T) *seekServer {
	s := &seekServer{uploads: map[string][]byte{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"access_token": "app-token", "token_type": "bearer", "expires_in": 3600})
	})
	mux.HandleFunc("/workflows", func(w http.ResponseWriter, r *http.Request) {
		s.record(r)
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, map[string]interface{}{"data": []interface{}{
				workflowData("1", "First", "u-1"),
				workflowData("2", "Second", "u-2"),
			}})
		case http.MethodPost:
			s.upload(t, r, "new")
			writeJSON(w, map[string]interface{}{"data": workflowData("9", "Uploaded", "u-9")})
		}
	})
	mux.HandleFunc("/workflows/", func(w http.ResponseWriter, r *http.Request) {
		s.record(r)
		switch {
		case r.URL.Path == "/workflows/404":
			http.NotFound(w, r)
		case r.Method == http.MethodPost && r.URL.Path == "/workflows/1/create_version":
			s.upload(t, r, "1")
			writeJSON(w, map[string]interface{}{"data": workflowData("1", "First", "u-1")})
		case r.Method == http.MethodPatch:
			s.mu.Lock()
			s.patched = append(s.patched, r.URL.Path)
			s.mu.Unlock()
			writeJSON(w, map[string]interface{}{"data": workflowData("9", "Uploaded", "u-9")})
		case r.Method == http.MethodDelete:
			s.mu.Lock()
			s.deleted = append(s.deleted, r.URL.Path)
			s.mu.Unlock()
			writeJSON(w, map[string]interface{}{"data": map[string]string{}})
		default:
			writeJSON(w, map[string]interface{}{"data": workflowData("1", "First", "u-1")})
		}
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *seekServer) record(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth = append(s.auth, r.Header.Get("Authorization"))
}

func (s *seekServer) upload(t *testing.T, r *http.Request, key string) {
	f, _, err := r.FormFile("ro_crate")
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	s.mu.Lock()
	s.uploads[key] = data
	s.mu.Unlock()
}

func newTestClient(t *testing.T, s *seekServer) Client {
	c, err := New(config.RegistryConfig{
		Name:         "wfhub",
		Type:         TypeSeek,
		URI:          s.URL,
		ClientID:     "lm",
		ClientSecret: "secret",
		TokenURL:     s.URL + "/oauth/token",
		Enabled:      true,
	}, WithHTTPClient(s.Client()))
	require.NoError(t, err)
	return c
}

func TestNew_Unsupported(t *testing.T) {
	asserter := assert.New(t)
	_, err := New(config.RegistryConfig{Name: "x", Type: "dockstore"})
	asserter.True(problem.Is(err, problem.KindRegistryNotSupported))

	set := NewSet(map[string]config.RegistryConfig{
		"wfhub":    {Name: "wfhub", Type: TypeSeek, URI: "http://seek", Enabled: true},
		"disabled": {Name: "disabled", Type: TypeSeek, Enabled: false},
		"other":    {Name: "other", Type: "dockstore", Enabled: true},
	})
	asserter.Equal([]string{"wfhub"}, set.Names())
	_, err = set.Client("other")
	asserter.True(problem.Is(err, problem.KindNotFound))
}

func TestSeek_GetWorkflows(t *testing.T) {
	asserter := assert.New(t)
	s := newSeekServer(t)
	c := newTestClient(t, s)

	workflows, err := c.GetWorkflows(context.Background(), nil)
	require.NoError(t, err)
	if asserter.Len(workflows, 2) {
		asserter.Equal(Workflow{
			ID: "1", Name: "First", UUID: "u-1", Version: "2", Versions: []string{"1", "2"}, SubmitterID: "5",
		}, workflows[0])
	}
	asserter.Equal([]string{"Bearer app-token"}, s.auth)

	w, err := c.GetWorkflow(context.Background(), &Submitter{Token: "user-token"}, "1")
	require.NoError(t, err)
	asserter.Equal("First", w.Name)
	asserter.Equal("Bearer user-token", s.auth[1])

	_, err = c.GetWorkflow(context.Background(), nil, "404")
	asserter.True(problem.Is(err, problem.KindNotFound))
}

func TestSeek_RegisterWorkflowVersion(t *testing.T) {
	asserter := assert.New(t)
	s := newSeekServer(t)
	c := newTestClient(t, s)
	ctx := context.Background()

	id, err := c.RegisterWorkflowVersion(ctx, &Submitter{ProjectID: "3"}, []byte("zip"), "")
	require.NoError(t, err)
	asserter.Equal("9", id)
	asserter.Equal([]byte("zip"), s.uploads["new"])
	asserter.Equal([]string{"/workflows/9"}, s.patched)

	id, err = c.RegisterWorkflowVersion(ctx, nil, []byte("zip v2"), "1")
	require.NoError(t, err)
	asserter.Equal("1", id)
	asserter.Equal([]byte("zip v2"), s.uploads["1"])
	asserter.Len(s.patched, 1)
}

func TestSeek_DeleteAndFilter(t *testing.T) {
	asserter := assert.New(t)
	s := newSeekServer(t)
	c := newTestClient(t, s)
	ctx := context.Background()

	require.NoError(t, c.DeleteWorkflow(ctx, nil, "2"))
	asserter.Equal([]string{"/workflows/2"}, s.deleted)

	filtered, err := c.FilterByUser(ctx, nil, []Workflow{{ID: "2"}, {ID: "7"}})
	require.NoError(t, err)
	asserter.Equal([]Workflow{{ID: "2"}}, filtered)

	asserter.Equal(s.URL+"/workflow/u-1?version=2", c.BuildROLink(Workflow{UUID: "u-1", Version: "2"}))
}
