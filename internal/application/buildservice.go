package application

import (
	"context"
	"errors"

	"github.com/chainguard-dev/clog"

	"github.com/ericfisherdev/prstatus/internal/domain/model"
	"github.com/ericfisherdev/prstatus/internal/domain/port/driven"
)

var (
	// ErrMissingBuildHost is returned when a BuildService is created without
	// a BuildHost.
	ErrMissingBuildHost = errors.New("build host is required")
	// ErrMissingClientProvider is returned when a BuildService is created
	// without a HostingClientProvider.
	ErrMissingClientProvider = errors.New("hosting client provider is required")
)

const (
	eventStarted  = "started"
	eventFinished = "finished"

	outcomeIgnored  = "ignored"
	outcomeReported = "reported"
	outcomeFailed   = "failed"
)

// BuildService reports a pull-request build's lifecycle to Bitbucket: an
// in-progress status when the build starts, then a terminal status, a comment
// and an optional approval when it finishes.
//
// Builds without a Cause were not triggered by a pull request and are left
// alone. Bitbucket failures are logged and never returned; the build itself
// must not fail because its status could not be reported.
type BuildService struct {
	provider         *HostingClientProvider
	host             driven.BuildHost
	approveIfSuccess bool
}

// NewBuildService creates a BuildService.
func NewBuildService(provider *HostingClientProvider, host driven.BuildHost, approveIfSuccess bool) (*BuildService, error) {
	if provider == nil {
		return nil, ErrMissingClientProvider
	}
	if host == nil {
		return nil, ErrMissingBuildHost
	}
	return &BuildService{
		provider:         provider,
		host:             host,
		approveIfSuccess: approveIfSuccess,
	}, nil
}

// OnStarted handles a build start. The build description is set from the
// cause and the commit is marked INPROGRESS.
func (s *BuildService) OnStarted(ctx context.Context, cause *model.Cause, build driven.Build) {
	if cause == nil {
		buildEvents.WithLabelValues(eventStarted, outcomeIgnored).Inc()
		return
	}
	ctx, log := withCause(ctx, cause)

	description := cause.ShortDescription()
	if err := build.SetDescription(ctx, description); err != nil {
		log.Warn("failed to update build description", "error", err)
	}

	client := s.provider.Get()
	if client == nil {
		log.Warn("no bitbucket client configured, build start not reported")
		buildEvents.WithLabelValues(eventStarted, outcomeFailed).Inc()
		return
	}

	buildURL := s.BuildURL(ctx, build.URL())
	if err := client.SetBuildStatus(ctx,
		cause.RepositoryOwner, cause.RepositoryName, cause.SourceCommitHash,
		model.BuildStateInProgress, buildURL, description, cause.JobName,
	); err != nil {
		log.Warn("failed to report build start", "error", err)
		buildEvents.WithLabelValues(eventStarted, outcomeFailed).Inc()
		return
	}

	log.Info("build start reported", "state", model.BuildStateInProgress, "url", buildURL)
	buildEvents.WithLabelValues(eventStarted, outcomeReported).Inc()
}

// OnCompleted handles a build finish. buildURL is relative to the host root.
// The terminal status is written and its name posted as a comment; on success
// the pull request is also approved when approveIfSuccess is set.
func (s *BuildService) OnCompleted(ctx context.Context, cause *model.Cause, result model.BuildResult, buildURL string) {
	if cause == nil {
		buildEvents.WithLabelValues(eventFinished, outcomeIgnored).Inc()
		return
	}
	ctx, log := withCause(ctx, cause)

	client := s.provider.Get()
	if client == nil {
		log.Warn("no bitbucket client configured, build result not reported", "result", result)
		buildEvents.WithLabelValues(eventFinished, outcomeFailed).Inc()
		return
	}

	state := result.TerminalState()
	fullURL := s.BuildURL(ctx, buildURL)
	outcome := outcomeReported

	if err := client.SetBuildStatus(ctx,
		cause.RepositoryOwner, cause.RepositoryName, cause.SourceCommitHash,
		state, fullURL, cause.ShortDescription(), cause.JobName,
	); err != nil {
		log.Warn("failed to report build result", "state", state, "error", err)
		outcome = outcomeFailed
	}

	if _, err := client.PostPullRequestComment(ctx, cause.PullRequestID, state.String()); err != nil {
		log.Warn("failed to comment build result", "state", state, "error", err)
		outcome = outcomeFailed
	}

	if s.approveIfSuccess && state == model.BuildStateSuccessful {
		s.approve(ctx, client, cause.PullRequestID)
	}

	log.Info("build result reported", "result", result, "state", state, "url", fullURL)
	buildEvents.WithLabelValues(eventFinished, outcome).Inc()
}

func (s *BuildService) approve(ctx context.Context, client driven.HostingClient, prID string) {
	log := clog.FromContext(ctx)

	participant, err := client.PostPullRequestApproval(ctx, prID)
	if err != nil {
		log.Warn("failed to approve pull request", "error", err)
		approvals.WithLabelValues(outcomeFailed).Inc()
		return
	}

	if participant != nil {
		log.Info("pull request approved", "approver", participant.Name)
	} else {
		log.Info("pull request approved")
	}
	approvals.WithLabelValues(outcomeReported).Inc()
}

// BuildURL prefixes relative with the host's root URL. Without a root URL no
// absolute link can be formed; a warning is logged and "" returned.
func (s *BuildService) BuildURL(ctx context.Context, relative string) string {
	root := s.host.RootURL()
	if root == "" {
		clog.FromContext(ctx).Warn("build host root URL is empty, configure PRSTATUS_ROOT_URL")
		return ""
	}
	return root + relative
}

// withCause attaches the cause's identifiers to the context logger.
func withCause(ctx context.Context, cause *model.Cause) (context.Context, *clog.Logger) {
	log := clog.FromContext(ctx).With(
		"build", cause.BuildID,
		"pull_request", cause.PullRequestID,
		"revision", cause.SourceCommitHash,
	)
	return clog.WithLogger(ctx, log), log
}
