package bitbucket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/chainguard-dev/clog"

	"github.com/ericfisherdev/prstatus/internal/domain/model"
	"github.com/ericfisherdev/prstatus/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.HostingClient = (*CloudClient)(nil)

// CloudClient implements driven.HostingClient against the Bitbucket Cloud 2.0 API.
type CloudClient struct {
	repoClient
	apiURL string
}

// Variant returns model.VariantCloud.
func (c *CloudClient) Variant() model.Variant { return model.VariantCloud }

// ListPullRequests returns every open pull request of the configured
// repository, backfilling missing clone links from the repository.
func (c *CloudClient) ListPullRequests(ctx context.Context) ([]model.PullRequest, error) {
	raw, err := FetchAll[cloudPullRequestJSON](ctx, c.transport, c.repoURL(c.owner, c.repository, "/pullrequests"))

	prs := make([]model.PullRequest, 0, len(raw))
	for _, pr := range raw {
		prs = append(prs, pr.toModel())
	}

	if len(prs) > 0 {
		repo, linkErr := GetJSON[cloudRepositoryJSON](ctx, c.transport, c.repoURL(c.owner, c.repository, ""))
		if linkErr == nil {
			links := mapLinks(repo.Links.Clone)
			backfillCloneLinks(ctx, prs, &links)
		}
	}

	if err != nil {
		return prs, fmt.Errorf("listing pull requests for %s/%s: %w", c.owner, c.repository, err)
	}
	return prs, nil
}

// ListPullRequestComments returns the comments of a pull request held in
// owner/repo, which is the destination repository for pull requests from forks.
func (c *CloudClient) ListPullRequestComments(ctx context.Context, owner, repo, prID string) ([]model.Comment, error) {
	owner, repo = c.orDefault(owner, repo)
	raw, err := FetchAll[cloudCommentJSON](ctx, c.transport, c.repoURL(owner, repo, "/pullrequests/"+url.PathEscape(prID)+"/comments"))

	comments := make([]model.Comment, 0, len(raw))
	for _, cm := range raw {
		if cm.Deleted {
			continue
		}
		comments = append(comments, cm.toModel(prID))
	}

	if err != nil {
		return comments, fmt.Errorf("listing comments for pull request %s: %w", prID, err)
	}
	return comments, nil
}

// HasBuildStatus reports whether the status with this client's key exists on
// revision. A 404 means it does not.
func (c *CloudClient) HasBuildStatus(ctx context.Context, owner, repo, revision, keySuffix string) (bool, error) {
	owner, repo = c.orDefault(owner, repo)
	target := c.repoURL(owner, repo, "/commit/"+url.PathEscape(revision)+"/statuses/build/"+url.PathEscape(c.BuildStatusKey(keySuffix)))

	_, err := c.transport.Get(ctx, target)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, fmt.Errorf("checking build status for %s: %w", revision, err)
	}
	return true, nil
}

// SetBuildStatus writes the status for revision in owner/repo. Cloud stores
// comment as the status description.
func (c *CloudClient) SetBuildStatus(ctx context.Context, owner, repo, revision string, state model.BuildState, buildURL, comment, keySuffix string) error {
	owner, repo = c.orDefault(owner, repo)
	target := c.repoURL(owner, repo, "/commit/"+url.PathEscape(revision)+"/statuses/build")
	status := model.CommitBuildState{
		Key:         c.BuildStatusKey(keySuffix),
		State:       state,
		URL:         buildURL,
		Name:        c.name,
		Description: comment,
	}

	resp, err := c.transport.PostJSON(ctx, target, status)
	if err != nil {
		return fmt.Errorf("setting build status %s on %s: %w", state, revision, err)
	}

	clog.FromContext(ctx).Debug("build status posted",
		"state", state,
		"url", target,
		"key", status.Key,
		"response", string(resp),
	)
	return nil
}

// DeletePullRequestApproval withdraws the client user's approval.
func (c *CloudClient) DeletePullRequestApproval(ctx context.Context, prID string) error {
	if err := c.transport.Delete(ctx, c.approveURL(prID)); err != nil {
		return fmt.Errorf("deleting approval on pull request %s: %w", prID, err)
	}
	return nil
}

// PostPullRequestApproval approves the pull request and returns the approving
// participant.
func (c *CloudClient) PostPullRequestApproval(ctx context.Context, prID string) (*model.Participant, error) {
	resp, err := c.transport.PostEmpty(ctx, c.approveURL(prID))
	if err != nil {
		return nil, fmt.Errorf("approving pull request %s: %w", prID, err)
	}

	p, err := Decode[cloudParticipantJSON](resp)
	if err != nil {
		clog.FromContext(ctx).Warn("invalid approval response", "pull_request", prID, "error", err)
		return nil, nil
	}
	participant := p.toModel()
	return &participant, nil
}

// PostPullRequestComment adds a comment and returns it as created.
func (c *CloudClient) PostPullRequestComment(ctx context.Context, prID, content string) (*model.Comment, error) {
	sent := &model.Comment{PullRequestID: prID, Content: content}

	body := cloudCommentJSON{}
	body.Content.Raw = content

	resp, err := c.transport.PostJSON(ctx, c.repoURL(c.owner, c.repository, "/pullrequests/"+url.PathEscape(prID)+"/comments"), body)
	if err != nil {
		return sent, fmt.Errorf("commenting on pull request %s: %w", prID, err)
	}

	created, err := Decode[cloudCommentJSON](resp)
	if err != nil {
		clog.FromContext(ctx).Warn("invalid pull request comment response", "pull_request", prID, "error", err)
		return sent, nil
	}
	comment := created.toModel(prID)
	return &comment, nil
}

func (c *CloudClient) approveURL(prID string) string {
	return c.repoURL(c.owner, c.repository, "/pullrequests/"+url.PathEscape(prID)+"/approve")
}

// orDefault falls back to the configured repository for empty arguments.
func (c *CloudClient) orDefault(owner, repo string) (string, string) {
	if owner == "" {
		owner = c.owner
	}
	if repo == "" {
		repo = c.repository
	}
	return owner, repo
}

// repoURL returns a URL under /2.0/repositories/{owner}/{repo}.
func (c *CloudClient) repoURL(owner, repo, path string) string {
	return c.apiURL + "/2.0/repositories/" + url.PathEscape(owner) + "/" + url.PathEscape(repo) + path
}
