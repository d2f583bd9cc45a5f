package httphandler

import (
	"encoding/json"
	"net/http"

	"github.com/ericfisherdev/prstatus/internal/domain/model"
)

// writeJSON marshals v and writes it with status. A marshal failure is
// written as a 500 instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error body.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

type errorResponse struct {
	Error string `json:"error"`
}

// RegisterBuildRequest is the body of POST /api/v1/builds.
type RegisterBuildRequest struct {
	BuildID                    string `json:"build_id"`
	PullRequestID              string `json:"pull_request_id"`
	Title                      string `json:"title"`
	SourceBranch               string `json:"source_branch"`
	TargetBranch               string `json:"target_branch"`
	RepositoryOwner            string `json:"repository_owner"`
	RepositoryName             string `json:"repository_name"`
	DestinationRepositoryOwner string `json:"destination_repository_owner"`
	DestinationRepositoryName  string `json:"destination_repository_name"`
	SourceCommitHash           string `json:"source_commit_hash"`
	DestinationCommitHash      string `json:"destination_commit_hash"`
	JobName                    string `json:"job_name"`
}

func (r RegisterBuildRequest) toCause() model.Cause {
	return model.Cause{
		BuildID:                    r.BuildID,
		PullRequestID:              r.PullRequestID,
		Title:                      r.Title,
		SourceBranch:               r.SourceBranch,
		TargetBranch:               r.TargetBranch,
		RepositoryOwner:            r.RepositoryOwner,
		RepositoryName:             r.RepositoryName,
		DestinationRepositoryOwner: r.DestinationRepositoryOwner,
		DestinationRepositoryName:  r.DestinationRepositoryName,
		SourceCommitHash:           r.SourceCommitHash,
		DestinationCommitHash:      r.DestinationCommitHash,
		JobName:                    r.JobName,
	}
}

// BuildResponse is the JSON representation of a registered build.
type BuildResponse struct {
	BuildID          string `json:"build_id"`
	PullRequestID    string `json:"pull_request_id"`
	Description      string `json:"description"`
	RepositoryOwner  string `json:"repository_owner"`
	RepositoryName   string `json:"repository_name"`
	SourceCommitHash string `json:"source_commit_hash"`
	JobName          string `json:"job_name"`
}

func toBuildResponse(c model.Cause, description string) BuildResponse {
	return BuildResponse{
		BuildID:          c.BuildID,
		PullRequestID:    c.PullRequestID,
		Description:      description,
		RepositoryOwner:  c.RepositoryOwner,
		RepositoryName:   c.RepositoryName,
		SourceCommitHash: c.SourceCommitHash,
		JobName:          c.JobName,
	}
}

// BuildStartedRequest is the body of POST /api/v1/builds/{id}/started.
type BuildStartedRequest struct {
	URL string `json:"url"`
}

// BuildFinishedRequest is the body of POST /api/v1/builds/{id}/finished.
type BuildFinishedRequest struct {
	Result string `json:"result"`
	URL    string `json:"url"`
}

// EventResponse acknowledges a lifecycle event. Ignored is true when the build
// has no registered cause.
type EventResponse struct {
	Ignored bool   `json:"ignored"`
	State   string `json:"state,omitempty"`
}

// PullRequestResponse is the JSON representation of a pull request.
type PullRequestResponse struct {
	ID               string   `json:"id"`
	Variant          string   `json:"variant"`
	Title            string   `json:"title"`
	State            string   `json:"state"`
	Author           string   `json:"author"`
	SourceBranch     string   `json:"source_branch"`
	SourceCommit     string   `json:"source_commit"`
	SourceRepository string   `json:"source_repository"`
	TargetBranch     string   `json:"target_branch"`
	TargetCommit     string   `json:"target_commit"`
	TargetRepository string   `json:"target_repository"`
	SourceCloneLinks []string `json:"source_clone_links"`
}

func toPullRequestResponse(pr model.PullRequest) PullRequestResponse {
	links := make([]string, 0, len(pr.Source.Repository.Links.Clone))
	for _, l := range pr.Source.Repository.Links.Clone {
		links = append(links, l.Href)
	}
	return PullRequestResponse{
		ID:               pr.ID,
		Variant:          string(pr.Variant),
		Title:            pr.Title,
		State:            pr.State,
		Author:           pr.Author,
		SourceBranch:     pr.Source.Branch,
		SourceCommit:     pr.Source.Commit,
		SourceRepository: pr.Source.Repository.FullName,
		TargetBranch:     pr.Destination.Branch,
		TargetCommit:     pr.Destination.Commit,
		TargetRepository: pr.Destination.Repository.FullName,
		SourceCloneLinks: links,
	}
}

// CommentResponse is the JSON representation of a pull request comment.
type CommentResponse struct {
	ID          int64  `json:"id"`
	Author      string `json:"author"`
	Content     string `json:"content"`
	ContentHTML string `json:"content_html"`
}

func toCommentResponse(c model.Comment) CommentResponse {
	resp := CommentResponse{
		ID:          c.ID,
		Content:     c.Content,
		ContentHTML: renderMarkdown(c.Content),
	}
	if c.Author != nil {
		resp.Author = c.Author.Name
	}
	return resp
}

// PostCommentRequest is the body of POST /api/v1/pull-requests/{id}/comments.
type PostCommentRequest struct {
	Content string `json:"content"`
}

// ApprovalResponse is returned after approving a pull request. Approver is
// empty when Bitbucket does not report the participant.
type ApprovalResponse struct {
	Approved bool   `json:"approved"`
	Approver string `json:"approver,omitempty"`
}

// StatusResponse reports whether a build status exists on a revision.
type StatusResponse struct {
	Revision string `json:"revision"`
	Key      string `json:"key"`
	Present  bool   `json:"present"`
}

// CredentialsRequest is the body of PUT /api/v1/credentials.
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status              string `json:"status"`
	Time                string `json:"time"`
	BitbucketConfigured bool   `json:"bitbucket_configured"`
	Variant             string `json:"variant,omitempty"`
}
