package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"lifemonitor/app/config"
	"lifemonitor/pkg/log"
	"lifemonitor/pkg/problem"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const jsonAPI = "application/vnd.api+json"

// seek is a client of the SEEK JSON:API (WorkflowHub).
type seek struct {
	cfg         config.RegistryConfig
	opts        *options
	credentials *clientcredentials.Config
}

func newSeek(cfg config.RegistryConfig, o *options) *seek {
	s := &seek{cfg: cfg, opts: o}
	if cfg.ClientID != "" {
		s.credentials = &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
	}
	return s
}

func (s *seek) Name() string { return s.cfg.Name }

func (s *seek) Type() string { return TypeSeek }

// rest returns a client authorised as the submitter, or with the registry
// client credentials when the submitter carries no token.
func (s *seek) rest(ctx context.Context, submitter *Submitter) *resty.Client {
	if s.opts.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.opts.client)
	}
	var hc *http.Client
	switch {
	case submitter != nil && submitter.Token != "":
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: submitter.Token}))
	case s.credentials != nil:
		hc = s.credentials.Client(ctx)
	case s.opts.client != nil:
		hc = s.opts.client
	default:
		hc = &http.Client{}
	}
	return resty.NewWithClient(hc).
		SetBaseURL(s.cfg.URI).
		SetTimeout(s.opts.timeout).
		SetHeader("Accept", jsonAPI)
}

type seekVersion struct {
	Version interface{} `json:"version"`
	Remote  string      `json:"remote,omitempty"`
}

type seekWorkflow struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		Title    string        `json:"title"`
		Version  interface{}   `json:"version"`
		Versions []seekVersion `json:"versions"`
	} `json:"attributes"`
	Meta struct {
		UUID string `json:"uuid"`
	} `json:"meta"`
	Relationships struct {
		Submitter struct {
			Data []struct {
				ID string `json:"id"`
			} `json:"data"`
		} `json:"submitter"`
	} `json:"relationships"`
}

func versionString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return fmt.Sprintf("%g", x)
	case string:
		return x
	}
	return fmt.Sprint(v)
}

func (w *seekWorkflow) workflow() Workflow {
	result := Workflow{
		ID:      w.ID,
		Name:    w.Attributes.Title,
		UUID:    w.Meta.UUID,
		Version: versionString(w.Attributes.Version),
	}
	for _, v := range w.Attributes.Versions {
		result.Versions = append(result.Versions, versionString(v.Version))
	}
	if data := w.Relationships.Submitter.Data; len(data) > 0 {
		result.SubmitterID = data[0].ID
	}
	return result
}

// do sends a request and decodes the JSON:API data member into out.
func (s *seek) do(req *resty.Request, method, path string, out interface{}) error {
	resp, err := req.Execute(method, path)
	if err != nil {
		return errors.Wrapf(err, "%s %s%s", method, s.cfg.URI, path)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return problem.NotFound("registry workflow", strings.TrimPrefix(path, "/workflows/"))
	}
	if resp.IsError() {
		return errors.Errorf("%s %s%s: unexpected status %s", method, s.cfg.URI, path, resp.Status())
	}
	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return errors.Wrapf(err, "decode %s %s", method, path)
	}
	return errors.Wrapf(json.Unmarshal(envelope.Data, out), "decode data of %s %s", method, path)
}

func (s *seek) GetWorkflows(ctx context.Context, submitter *Submitter) ([]Workflow, error) {
	var data []seekWorkflow
	req := s.rest(ctx, submitter).R().SetContext(ctx).SetQueryParam("format", "json")
	if err := s.do(req, http.MethodGet, "/workflows", &data); err != nil {
		return nil, err
	}
	result := make([]Workflow, 0, len(data))
	for i := range data {
		result = append(result, data[i].workflow())
	}
	return result, nil
}

func (s *seek) GetWorkflow(ctx context.Context, submitter *Submitter, id string) (*Workflow, error) {
	var data seekWorkflow
	req := s.rest(ctx, submitter).R().SetContext(ctx).SetQueryParam("format", "json")
	if err := s.do(req, http.MethodGet, "/workflows/"+url.PathEscape(id), &data); err != nil {
		return nil, err
	}
	w := data.workflow()
	return &w, nil
}

func (s *seek) RegisterWorkflowVersion(ctx context.Context, submitter *Submitter, crate []byte, externalID string) (string, error) {
	path := "/workflows"
	if externalID != "" {
		path += "/" + url.PathEscape(externalID) + "/create_version"
	}
	req := s.rest(ctx, submitter).R().SetContext(ctx).
		SetFileReader("ro_crate", "ro-crate.crate.zip", bytes.NewReader(crate))
	projectID := ""
	if submitter != nil {
		projectID = submitter.ProjectID
	}
	if projectID != "" {
		req.SetFormData(map[string]string{"workflow[project_ids][]": projectID})
	}
	var data seekWorkflow
	if err := s.do(req, http.MethodPost, path, &data); err != nil {
		return "", err
	}
	if data.ID == "" {
		return "", errors.Errorf("registry %s returned no workflow identifier", s.cfg.Name)
	}
	log.Debugf(ctx, "Workflow %s registered on %s", data.ID, s.cfg.Name)
	if externalID == "" {
		if err := s.updateVisibility(ctx, submitter, data.ID, projectID); err != nil {
			return data.ID, err
		}
	}
	return data.ID, nil
}

// updateVisibility makes a new workflow downloadable and manageable by its project.
func (s *seek) updateVisibility(ctx context.Context, submitter *Submitter, id, projectID string) error {
	policy := map[string]interface{}{"access": "download"}
	if projectID != "" {
		policy["permissions"] = []interface{}{
			map[string]interface{}{
				"resource": map[string]string{"id": projectID, "type": "projects"},
				"access":   "manage",
			},
		}
	}
	body := map[string]interface{}{
		"data": map[string]interface{}{
			"id":         id,
			"type":       "workflows",
			"attributes": map[string]interface{}{"policy": policy},
		},
	}
	req := s.rest(ctx, submitter).R().SetContext(ctx).
		SetHeader("Content-Type", jsonAPI).
		SetBody(body)
	return s.do(req, http.MethodPatch, "/workflows/"+url.PathEscape(id), nil)
}

func (s *seek) DeleteWorkflow(ctx context.Context, submitter *Submitter, externalID string) error {
	req := s.rest(ctx, submitter).R().SetContext(ctx)
	return s.do(req, http.MethodDelete, "/workflows/"+url.PathEscape(externalID), nil)
}

func (s *seek) BuildROLink(w Workflow) string {
	link := strings.TrimRight(s.cfg.URI, "/") + "/workflow/" + w.UUID
	if w.Version != "" {
		link += "?version=" + url.QueryEscape(w.Version)
	}
	return link
}

func (s *seek) FilterByUser(ctx context.Context, submitter *Submitter, workflows []Workflow) ([]Workflow, error) {
	visible, err := s.GetWorkflows(ctx, submitter)
	if err != nil {
		return nil, err
	}
	allowed := make(map[string]bool, len(visible))
	for _, w := range visible {
		allowed[w.ID] = true
	}
	var result []Workflow
	for _, w := range workflows {
		if allowed[w.ID] {
			result = append(result, w)
		}
	}
	return result, nil
}
