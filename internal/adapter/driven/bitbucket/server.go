package bitbucket

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/chainguard-dev/clog"

	"github.com/ericfisherdev/prstatus/internal/domain/model"
	"github.com/ericfisherdev/prstatus/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.HostingClient = (*ServerClient)(nil)

const pullRequestsPath = "/pull-requests/"

// ServerClient implements driven.HostingClient against Bitbucket Server.
// Pull requests, comments and approvals live under the project/repository
// REST root; build statuses live under a separate per-commit resource.
type ServerClient struct {
	repoClient
	serverURL string
}

// Variant returns model.VariantServer.
func (c *ServerClient) Variant() model.Variant { return model.VariantServer }

// ListPullRequests returns every pull request of the configured repository.
// Source repositories without clone links get the repository's own links.
func (c *ServerClient) ListPullRequests(ctx context.Context) ([]model.PullRequest, error) {
	raw, err := FetchAll[serverPullRequestJSON](ctx, c.transport, c.restV1(pullRequestsPath))

	prs := make([]model.PullRequest, 0, len(raw))
	for _, pr := range raw {
		prs = append(prs, pr.toModel())
	}

	if len(prs) > 0 {
		links, linkErr := c.repositoryLinks(ctx)
		if linkErr == nil {
			backfillCloneLinks(ctx, prs, links)
		}
	}

	if err != nil {
		return prs, fmt.Errorf("listing pull requests for %s/%s: %w", c.owner, c.repository, err)
	}
	return prs, nil
}

// repositoryLinks fetches the clone links from the repository descriptor.
func (c *ServerClient) repositoryLinks(ctx context.Context) (*model.RepositoryLinks, error) {
	repo, err := GetJSON[serverRepositoryJSON](ctx, c.transport, c.restV1(""))
	if err != nil {
		return nil, fmt.Errorf("fetching repository %s/%s: %w", c.owner, c.repository, err)
	}
	links := mapLinks(repo.Links.Clone)
	return &links, nil
}

// ListPullRequestComments returns the comment activities of a pull request in
// feed order. Server keeps comments in the configured repository, so owner
// and repo are not used.
func (c *ServerClient) ListPullRequestComments(ctx context.Context, _, _, prID string) ([]model.Comment, error) {
	activities, err := FetchAll[serverActivityJSON](ctx, c.transport, c.restV1(pullRequestsPath+url.PathEscape(prID)+"/activities"))

	comments := []model.Comment{}
	for _, a := range activities {
		if a.isComment() {
			comments = append(comments, a.toComment(prID))
		}
	}

	if err != nil {
		return comments, fmt.Errorf("listing comments for pull request %s: %w", prID, err)
	}
	return comments, nil
}

// HasBuildStatus reports whether any build status is recorded for revision.
// Server does not filter by key, so keySuffix is not used.
func (c *ServerClient) HasBuildStatus(ctx context.Context, _, _, revision, _ string) (bool, error) {
	statuses, err := FetchAll[model.CommitBuildState](ctx, c.transport, c.buildStateV1(revision))
	if len(statuses) > 0 {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking build status for %s: %w", revision, err)
	}
	return false, nil
}

// SetBuildStatus writes the status for revision. The build-status resource is
// keyed by commit, so owner and repo are not part of the request.
// Server's build-status payload has no place for comment; it is dropped.
func (c *ServerClient) SetBuildStatus(ctx context.Context, _, _, revision string, state model.BuildState, buildURL, comment, keySuffix string) error {
	target := c.buildStateV1(revision)
	status := model.CommitBuildState{
		Key:   c.BuildStatusKey(keySuffix),
		State: state,
		URL:   buildURL,
	}

	log := clog.FromContext(ctx)
	if comment != "" {
		log.Debug("comment not attached to server build status", "revision", revision, "comment", comment)
	}

	resp, err := c.transport.PostJSON(ctx, target, status)
	if err != nil {
		return fmt.Errorf("setting build status %s on %s: %w", state, revision, err)
	}

	log.Debug("build status posted",
		"state", state,
		"url", target,
		"key", status.Key,
		"response", string(resp),
	)
	return nil
}

// DeletePullRequestApproval withdraws the client user's approval.
func (c *ServerClient) DeletePullRequestApproval(ctx context.Context, prID string) error {
	if err := c.transport.Delete(ctx, c.approveURL(prID)); err != nil {
		return fmt.Errorf("deleting approval on pull request %s: %w", prID, err)
	}
	return nil
}

// PostPullRequestApproval approves the pull request. Server's response is not
// parsed, so the participant is always nil.
func (c *ServerClient) PostPullRequestApproval(ctx context.Context, prID string) (*model.Participant, error) {
	if _, err := c.transport.PostEmpty(ctx, c.approveURL(prID)); err != nil {
		return nil, fmt.Errorf("approving pull request %s: %w", prID, err)
	}
	return nil, nil
}

// PostPullRequestComment adds a comment to the pull request. The created
// comment is returned when the response can be parsed; otherwise the comment
// as sent.
func (c *ServerClient) PostPullRequestComment(ctx context.Context, prID, content string) (*model.Comment, error) {
	sent := &model.Comment{PullRequestID: prID, Content: content}

	resp, err := c.transport.PostJSON(ctx, c.restV1(pullRequestsPath+url.PathEscape(prID)+"/comments"), serverCommentJSON{Text: content})
	if err != nil {
		return sent, fmt.Errorf("commenting on pull request %s: %w", prID, err)
	}

	created, err := Decode[serverCommentJSON](resp)
	if err != nil {
		clog.FromContext(ctx).Warn("invalid pull request comment response", "pull_request", prID, "error", err)
		return sent, nil
	}
	comment := created.toModel(prID)
	return &comment, nil
}

func (c *ServerClient) approveURL(prID string) string {
	return c.restV1(pullRequestsPath + url.PathEscape(prID) + "/approve")
}

// restV1 returns a URL under the project/repository REST root.
func (c *ServerClient) restV1(path string) string {
	return c.serverURL + "/rest/api/1.0/projects/" + url.PathEscape(c.owner) + "/repos/" + url.PathEscape(c.repository) + path
}

// buildStateV1 returns the build-status URL for a commit.
func (c *ServerClient) buildStateV1(revision string) string {
	return c.serverURL + "/rest/build-status/1.0/commits/" + url.PathEscape(strings.TrimSpace(revision))
}
