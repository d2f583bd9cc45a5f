// Package driven defines secondary port interfaces for external adapters.
package driven

import (
	"context"

	"github.com/ericfisherdev/prstatus/internal/domain/model"
)

// HostingClient defines the driven port for a Bitbucket backend. Cloud and
// Server expose different REST shapes; implementations normalize them behind
// this contract. Failures are returned as errors and never panic.
type HostingClient interface {
	// Name is the CI name reported with build statuses.
	Name() string
	Variant() model.Variant

	// Read methods

	ListPullRequests(ctx context.Context) ([]model.PullRequest, error)
	// ListPullRequestComments returns the comments of a pull request in feed
	// order. owner and repo name the repository holding the comments, which
	// for forks may differ from the client's own repository.
	ListPullRequestComments(ctx context.Context, owner, repo, prID string) ([]model.Comment, error)
	// HasBuildStatus reports whether a build status exists for the revision.
	HasBuildStatus(ctx context.Context, owner, repo, revision, keySuffix string) (bool, error)

	// Write methods

	// SetBuildStatus creates or overwrites the build status identified by
	// BuildStatusKey(keySuffix) on the given revision.
	SetBuildStatus(ctx context.Context, owner, repo, revision string, state model.BuildState, buildURL, comment, keySuffix string) error
	DeletePullRequestApproval(ctx context.Context, prID string) error
	// PostPullRequestApproval approves the pull request. The participant is
	// nil for variants that do not return one.
	PostPullRequestApproval(ctx context.Context, prID string) (*model.Participant, error)
	PostPullRequestComment(ctx context.Context, prID, content string) (*model.Comment, error)

	// BuildStatusKey derives the bounded status key from the configured prefix.
	BuildStatusKey(suffix string) string
}
