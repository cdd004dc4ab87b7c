package github

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	EventPing                     = "ping"
	EventPush                     = "push"
	EventCreate                   = "create"
	EventDelete                   = "delete"
	EventInstallation             = "installation"
	EventInstallationRepositories = "installation_repositories"
	EventIssues                   = "issues"
	EventIssueComment             = "issue_comment"
	EventPullRequest              = "pull_request"
	EventWorkflowRun              = "workflow_run"
	EventWorkflowJob              = "workflow_job"

	HeaderEvent          = "X-Github-Event"
	HeaderDelivery       = "X-Github-Delivery"
	HeaderTargetID       = "X-Github-Hook-Installation-Target-Id"
	HeaderTargetType     = "X-Github-Hook-Installation-Target-Type"
	IssueBranchPrefix    = "lifemonitor-issue"
	WizardBranchPrefix   = "wizard-step"
	refHeadsPrefix       = "refs/heads/"
	refTagsPrefix        = "refs/tags/"
	defaultWorkflowsPath = ".github/workflows/"
)

var SupportedEvents = map[string]bool{
	EventPing: true, EventPush: true, EventCreate: true, EventDelete: true,
	EventInstallation: true, EventInstallationRepositories: true,
	EventIssues: true, EventIssueComment: true, EventPullRequest: true,
	EventWorkflowRun: true, EventWorkflowJob: true,
}

type Account struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Type  string `json:"type,omitempty"`
}

type Repository struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	FullName      string  `json:"full_name"`
	Owner         Account `json:"owner"`
	Private       bool    `json:"private"`
	URL           string  `json:"url"`
	HTMLURL       string  `json:"html_url"`
	CloneURL      string  `json:"clone_url"`
	DefaultBranch string  `json:"default_branch"`
}

type Issue struct {
	ID          int64           `json:"id"`
	Number      int             `json:"number"`
	Title       string          `json:"title"`
	Body        string          `json:"body"`
	State       string          `json:"state"`
	User        Account         `json:"user"`
	HTMLURL     string          `json:"html_url"`
	Labels      []Label         `json:"labels,omitempty"`
	PullRequest json.RawMessage `json:"pull_request,omitempty"`
}

type Label struct {
	Name string `json:"name"`
}

type Comment struct {
	ID        int64   `json:"id"`
	Body      string  `json:"body"`
	User      Account `json:"user"`
	CreatedAt string  `json:"created_at,omitempty"`
}

type PullRequest struct {
	ID      int64   `json:"id"`
	Number  int     `json:"number"`
	Title   string  `json:"title"`
	State   string  `json:"state"`
	Merged  bool    `json:"merged"`
	User    Account `json:"user"`
	HTMLURL string  `json:"html_url"`
	Head    struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	} `json:"head"`
	Base struct {
		Ref string `json:"ref"`
	} `json:"base"`
}

type Workflow struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
}

type WorkflowRun struct {
	ID         int64  `json:"id"`
	RunAttempt int64  `json:"run_attempt"`
	WorkflowID int64  `json:"workflow_id"`
	Path       string `json:"path"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion"`
	HeadBranch string `json:"head_branch"`
	HeadSHA    string `json:"head_sha"`
}

type WorkflowJob struct {
	ID           int64  `json:"id"`
	RunID        int64  `json:"run_id"`
	RunAttempt   int64  `json:"run_attempt"`
	WorkflowName string `json:"workflow_name"`
	Status       string `json:"status"`
}

type Installation struct {
	ID      int64   `json:"id"`
	Account Account `json:"account"`
}

// Event is a normalized GitHub webhook delivery.
type Event struct {
	ID                   string          `json:"id"`
	Type                 string          `json:"type"`
	Action               string          `json:"action,omitempty"`
	InstallationTargetID string          `json:"installation_target_id,omitempty"`
	Installation         *Installation   `json:"installation,omitempty"`
	Repository           *Repository     `json:"repository,omitempty"`
	Sender               *Account        `json:"sender,omitempty"`
	Pusher               string          `json:"pusher,omitempty"`
	Ref                  string          `json:"ref,omitempty"`
	RefType              string          `json:"ref_type,omitempty"`
	Before               string          `json:"before,omitempty"`
	After                string          `json:"after,omitempty"`
	Created              bool            `json:"created,omitempty"`
	Deleted              bool            `json:"deleted,omitempty"`
	Forced               bool            `json:"forced,omitempty"`
	Issue                *Issue          `json:"issue,omitempty"`
	Comment              *Comment        `json:"comment,omitempty"`
	PullRequest          *PullRequest    `json:"pull_request,omitempty"`
	Workflow             *Workflow       `json:"workflow,omitempty"`
	WorkflowRun          *WorkflowRun    `json:"workflow_run,omitempty"`
	WorkflowJob          *WorkflowJob    `json:"workflow_job,omitempty"`
	RepositoriesAdded    []Repository    `json:"repositories_added,omitempty"`
	RepositoriesRemoved  []Repository    `json:"repositories_removed,omitempty"`
	Repositories         []Repository    `json:"repositories,omitempty"`
	Headers              http.Header     `json:"headers,omitempty"`
	Payload              json.RawMessage `json:"payload,omitempty"`
}

type rawEvent struct {
	Action       string        `json:"action"`
	Installation *Installation `json:"installation"`
	Repository   *Repository   `json:"repository"`
	Sender       *Account      `json:"sender"`
	Pusher       *struct {
		Name string `json:"name"`
	} `json:"pusher"`
	Ref                 string       `json:"ref"`
	RefType             string       `json:"ref_type"`
	Before              string       `json:"before"`
	After               string       `json:"after"`
	Created             bool         `json:"created"`
	Deleted             bool         `json:"deleted"`
	Forced              bool         `json:"forced"`
	Issue               *Issue       `json:"issue"`
	Comment             *Comment     `json:"comment"`
	PullRequest         *PullRequest `json:"pull_request"`
	Workflow            *Workflow    `json:"workflow"`
	WorkflowRun         *WorkflowRun `json:"workflow_run"`
	WorkflowJob         *WorkflowJob `json:"workflow_job"`
	RepositoriesAdded   []Repository `json:"repositories_added"`
	RepositoriesRemoved []Repository `json:"repositories_removed"`
	Repositories        []Repository `json:"repositories"`
}

// ParseEvent normalizes a webhook delivery. Payloads wrapped in a
// {"payload": ...} envelope are accepted.
func ParseEvent(headers http.Header, body []byte) (*Event, error) {
	kind := headers.Get(HeaderEvent)
	if kind == "" {
		return nil, errors.New("missing event type header")
	}
	payload := json.RawMessage(body)
	var envelope struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Payload) > 0 && envelope.Payload[0] == '{' {
		payload = envelope.Payload
	}
	var raw rawEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, errors.Wrapf(err, "decode %s event", kind)
	}
	e := &Event{
		ID:                   headers.Get(HeaderDelivery),
		Type:                 kind,
		Action:               raw.Action,
		InstallationTargetID: headers.Get(HeaderTargetID),
		Installation:         raw.Installation,
		Repository:           raw.Repository,
		Sender:               raw.Sender,
		Ref:                  raw.Ref,
		RefType:              raw.RefType,
		Before:               raw.Before,
		After:                raw.After,
		Created:              raw.Created,
		Deleted:              raw.Deleted || kind == EventDelete,
		Forced:               raw.Forced,
		Issue:                raw.Issue,
		Comment:              raw.Comment,
		PullRequest:          raw.PullRequest,
		Workflow:             raw.Workflow,
		WorkflowRun:          raw.WorkflowRun,
		WorkflowJob:          raw.WorkflowJob,
		RepositoriesAdded:    raw.RepositoriesAdded,
		RepositoriesRemoved:  raw.RepositoriesRemoved,
		Repositories:         raw.Repositories,
		Headers:              forwardHeaders(headers),
		Payload:              payload,
	}
	if raw.Pusher != nil {
		e.Pusher = raw.Pusher.Name
	}
	// create/delete events carry the short ref name and its type
	if e.Ref != "" && !strings.HasPrefix(e.Ref, "refs/") {
		switch e.RefType {
		case "tag":
			e.Ref = refTagsPrefix + e.Ref
		case "branch":
			e.Ref = refHeadsPrefix + e.Ref
		}
	}
	if kind == EventCreate {
		e.Created = true
	}
	return e, nil
}

func forwardHeaders(h http.Header) http.Header {
	out := http.Header{}
	for k, v := range h {
		if strings.HasPrefix(http.CanonicalHeaderKey(k), "X-") || http.CanonicalHeaderKey(k) == "Content-Type" {
			out[http.CanonicalHeaderKey(k)] = append([]string(nil), v...)
		}
	}
	return out
}

func (e *Event) InstallationID() int64 {
	if e.Installation == nil {
		return 0
	}
	return e.Installation.ID
}

// Rev is the commit the event refers to: before for deletions, after otherwise.
func (e *Event) Rev() string {
	if e.Deleted {
		return e.Before
	}
	return e.After
}

func (e *Event) Branch() string {
	if e.Ref == "" || e.RefType == "tag" || strings.HasPrefix(e.Ref, refTagsPrefix) {
		return ""
	}
	return strings.TrimPrefix(e.Ref, refHeadsPrefix)
}

func (e *Event) Tag() string {
	if e.Ref == "" || (e.RefType != "" && e.RefType != "tag") || strings.HasPrefix(e.Ref, refHeadsPrefix) {
		return ""
	}
	return strings.TrimPrefix(e.Ref, refTagsPrefix)
}

// RefName is the branch or tag name of the event.
func (e *Event) RefName() string {
	if b := e.Branch(); b != "" {
		return b
	}
	return e.Tag()
}

func (e *Event) FullName() string {
	if e.Repository == nil {
		return ""
	}
	return e.Repository.FullName
}

// IsBotBranch reports events on the support branches the bot pushes itself.
func (e *Event) IsBotBranch() bool {
	b := e.Branch()
	return strings.HasPrefix(b, IssueBranchPrefix) || strings.HasPrefix(b, WizardBranchPrefix)
}

// FromBot reports events pushed or sent by bot.
func (e *Event) FromBot(bot string) bool {
	if bot == "" {
		return false
	}
	if e.Pusher != "" && (e.Pusher == bot || e.Pusher+"[bot]" == bot) {
		return true
	}
	return e.Type == EventPush && e.Sender != nil && e.Sender.Login == bot
}

// WorkflowResource is the testing service resource of the workflow a
// workflow_run or workflow_job event refers to.
func (e *Event) WorkflowResource() string {
	if e.Repository == nil {
		return ""
	}
	var p string
	switch {
	case e.Workflow != nil && e.Workflow.Path != "":
		p = e.Workflow.Path
	case e.WorkflowRun != nil && e.WorkflowRun.Path != "":
		p = e.WorkflowRun.Path
	default:
		return ""
	}
	p = strings.TrimPrefix(p, defaultWorkflowsPath)
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[i+1:]
	}
	return "repos/" + e.Repository.FullName + "/actions/workflows/" + p
}

// RunBuildID is the testing service build id of the run in a workflow_run event.
func (e *Event) RunBuildID() string {
	if e.WorkflowRun == nil {
		return ""
	}
	attempt := e.WorkflowRun.RunAttempt
	if attempt == 0 {
		attempt = 1
	}
	return strconv.FormatInt(e.WorkflowRun.ID, 10) + "_" + strconv.FormatInt(attempt, 10)
}
