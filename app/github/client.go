package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when GitHub answers 404.
var ErrNotFound = errors.New("github: not found")

// Client performs repository operations on behalf of an installation.
type Client struct {
	rest         *resty.Client
	installation int64
	bot          string
}

func (c *Client) Installation() int64 { return c.installation }

func (c *Client) Bot() string { return c.bot }

func (c *Client) send(ctx context.Context, method, path string, body, result interface{}) (*resty.Response, error) {
	req := c.rest.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return resp, ErrNotFound
	}
	if resp.IsError() {
		return resp, fmt.Errorf("%s %s: unexpected status %s: %s", method, path, resp.Status(), strings.TrimSpace(resp.String()))
	}
	if result != nil && len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), result); err != nil {
			return resp, errors.Wrapf(err, "decode %s %s", method, path)
		}
	}
	return resp, nil
}

func repoPath(fullName string, parts ...string) string {
	p := "/repos/" + fullName
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

func (c *Client) Repository(ctx context.Context, fullName string) (*Repository, error) {
	var repo Repository
	if _, err := c.send(ctx, http.MethodGet, repoPath(fullName), nil, &repo); err != nil {
		return nil, err
	}
	return &repo, nil
}

// InstallationRepositories lists the repositories the installation can access.
func (c *Client) InstallationRepositories(ctx context.Context) ([]Repository, error) {
	var all []Repository
	for page := 1; ; page++ {
		var result struct {
			TotalCount   int          `json:"total_count"`
			Repositories []Repository `json:"repositories"`
		}
		path := fmt.Sprintf("/installation/repositories?per_page=100&page=%d", page)
		if _, err := c.send(ctx, http.MethodGet, path, nil, &result); err != nil {
			return nil, err
		}
		all = append(all, result.Repositories...)
		if len(result.Repositories) < 100 || len(all) >= result.TotalCount {
			return all, nil
		}
	}
}

// Archive downloads the zipball of fullName at ref.
func (c *Client) Archive(ctx context.Context, fullName, ref string) ([]byte, error) {
	resp, err := c.send(ctx, http.MethodGet, repoPath(fullName, "zipball", url.PathEscape(ref)), nil, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

func (c *Client) Issues(ctx context.Context, fullName, state, creator string) ([]Issue, error) {
	q := url.Values{}
	q.Set("per_page", "100")
	if state != "" {
		q.Set("state", state)
	}
	if creator != "" {
		q.Set("creator", creator)
	}
	var issues []Issue
	if _, err := c.send(ctx, http.MethodGet, repoPath(fullName, "issues")+"?"+q.Encode(), nil, &issues); err != nil {
		return nil, err
	}
	result := issues[:0]
	for _, i := range issues {
		if len(i.PullRequest) == 0 {
			result = append(result, i)
		}
	}
	return result, nil
}

func (c *Client) CreateIssue(ctx context.Context, fullName, title, body string, labels []string) (*Issue, error) {
	var issue Issue
	payload := map[string]interface{}{"title": title, "body": body}
	if len(labels) > 0 {
		payload["labels"] = labels
	}
	if _, err := c.send(ctx, http.MethodPost, repoPath(fullName, "issues"), payload, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

func (c *Client) CloseIssue(ctx context.Context, fullName string, number int) error {
	_, err := c.send(ctx, http.MethodPatch, repoPath(fullName, "issues", fmt.Sprint(number)),
		map[string]string{"state": "closed"}, nil)
	return err
}

func (c *Client) Comments(ctx context.Context, fullName string, number int) ([]Comment, error) {
	var comments []Comment
	path := repoPath(fullName, "issues", fmt.Sprint(number), "comments") + "?per_page=100"
	if _, err := c.send(ctx, http.MethodGet, path, nil, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

func (c *Client) CreateComment(ctx context.Context, fullName string, number int, body string) (*Comment, error) {
	var comment Comment
	path := repoPath(fullName, "issues", fmt.Sprint(number), "comments")
	if _, err := c.send(ctx, http.MethodPost, path, map[string]string{"body": body}, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

// React adds a reaction such as "+1" or "confused" to an issue comment.
func (c *Client) React(ctx context.Context, fullName string, commentID int64, content string) error {
	path := repoPath(fullName, "issues", "comments", fmt.Sprint(commentID), "reactions")
	_, err := c.send(ctx, http.MethodPost, path, map[string]string{"content": content}, nil)
	return err
}

// BranchSHA returns the head commit of branch.
func (c *Client) BranchSHA(ctx context.Context, fullName, branch string) (string, error) {
	var ref struct {
		Object struct {
			SHA string `json:"sha"`
		} `json:"object"`
	}
	if _, err := c.send(ctx, http.MethodGet, repoPath(fullName, "git", "ref", "heads", branch), nil, &ref); err != nil {
		return "", err
	}
	return ref.Object.SHA, nil
}

// CreateBranch creates branch at sha; an existing branch is left untouched.
func (c *Client) CreateBranch(ctx context.Context, fullName, branch, sha string) error {
	payload := map[string]string{"ref": "refs/heads/" + branch, "sha": sha}
	resp, err := c.send(ctx, http.MethodPost, repoPath(fullName, "git", "refs"), payload, nil)
	if err != nil && resp != nil && resp.StatusCode() == http.StatusUnprocessableEntity {
		return nil
	}
	return err
}

// DeleteBranch reports whether the branch existed.
func (c *Client) DeleteBranch(ctx context.Context, fullName, branch string) (bool, error) {
	_, err := c.send(ctx, http.MethodDelete, repoPath(fullName, "git", "refs", "heads", branch), nil, nil)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PutFile adds or updates path on branch with a single commit.
func (c *Client) PutFile(ctx context.Context, fullName, branch, path string, content []byte, message string) error {
	contentsPath := repoPath(fullName, "contents", path)
	payload := map[string]string{
		"message": message,
		"content": base64.StdEncoding.EncodeToString(content),
		"branch":  branch,
	}
	var existing struct {
		SHA string `json:"sha"`
	}
	_, err := c.send(ctx, http.MethodGet, contentsPath+"?ref="+url.QueryEscape(branch), nil, &existing)
	switch {
	case err == nil:
		payload["sha"] = existing.SHA
	case !errors.Is(err, ErrNotFound):
		return err
	}
	_, err = c.send(ctx, http.MethodPut, contentsPath, payload, nil)
	return err
}

// PullRequest returns the open pull request whose head is branch, if any.
func (c *Client) PullRequest(ctx context.Context, fullName, owner, branch string) (*PullRequest, error) {
	var prs []PullRequest
	path := repoPath(fullName, "pulls") + "?state=open&head=" + url.QueryEscape(owner+":"+branch)
	if _, err := c.send(ctx, http.MethodGet, path, nil, &prs); err != nil {
		return nil, err
	}
	if len(prs) == 0 {
		return nil, nil
	}
	return &prs[0], nil
}

func (c *Client) CreatePullRequest(ctx context.Context, fullName, title, head, base, body string) (*PullRequest, error) {
	var pr PullRequest
	payload := map[string]string{"title": title, "head": head, "base": base, "body": body}
	if _, err := c.send(ctx, http.MethodPost, repoPath(fullName, "pulls"), payload, &pr); err != nil {
		return nil, err
	}
	return &pr, nil
}
