// Package httphandler is the REST driving adapter: it receives build
// lifecycle events from the CI system and exposes the Bitbucket operations.
package httphandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericfisherdev/prstatus/internal/application"
	"github.com/ericfisherdev/prstatus/internal/domain/model"
	"github.com/ericfisherdev/prstatus/internal/domain/port/driven"
)

// Handler serves the REST API.
type Handler struct {
	causes      driven.CauseStore
	builds      *application.BuildService
	provider    *application.HostingClientProvider
	credentials *application.CredentialService
}

// NewHandler creates a Handler. credentials may be nil, which disables
// credential rotation.
func NewHandler(
	causes driven.CauseStore,
	builds *application.BuildService,
	provider *application.HostingClientProvider,
	credentials *application.CredentialService,
) *Handler {
	return &Handler{
		causes:      causes,
		builds:      builds,
		provider:    provider,
		credentials: credentials,
	}
}

// NewServeMux registers all routes and wraps them with logging, metrics and
// recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/builds", h.RegisterBuild)
	mux.HandleFunc("GET /api/v1/builds/{id}", h.GetBuild)
	mux.HandleFunc("POST /api/v1/builds/{id}/started", h.BuildStarted)
	mux.HandleFunc("POST /api/v1/builds/{id}/finished", h.BuildFinished)

	mux.HandleFunc("GET /api/v1/pull-requests", h.ListPullRequests)
	mux.HandleFunc("GET /api/v1/pull-requests/{id}/comments", h.ListComments)
	mux.HandleFunc("POST /api/v1/pull-requests/{id}/comments", h.PostComment)
	mux.HandleFunc("POST /api/v1/pull-requests/{id}/approval", h.Approve)
	mux.HandleFunc("DELETE /api/v1/pull-requests/{id}/approval", h.Unapprove)

	mux.HandleFunc("GET /api/v1/status/{revision}", h.GetStatus)
	mux.HandleFunc("PUT /api/v1/credentials", h.SetCredentials)
	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(mux)
	wrapped = metricsMiddleware(wrapped)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// RegisterBuild records the pull request that triggered a build. Only builds
// registered here have their lifecycle reported.
func (h *Handler) RegisterBuild(w http.ResponseWriter, r *http.Request) {
	var req RegisterBuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.BuildID) == "" || strings.TrimSpace(req.PullRequestID) == "" {
		writeError(w, http.StatusBadRequest, "build_id and pull_request_id are required")
		return
	}
	if req.SourceCommitHash == "" {
		writeError(w, http.StatusBadRequest, "source_commit_hash is required")
		return
	}

	cause := req.toCause()
	if err := h.causes.Register(r.Context(), cause); err != nil {
		clog.FromContext(r.Context()).Error("failed to register build", "build", cause.BuildID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, toBuildResponse(cause, ""))
}

// GetBuild returns a registered build and its current description.
func (h *Handler) GetBuild(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	cause, err := h.causes.Get(ctx, id)
	if err != nil {
		clog.FromContext(ctx).Error("failed to get build", "build", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if cause == nil {
		writeError(w, http.StatusNotFound, "build not found")
		return
	}

	description, err := h.causes.Description(ctx, id)
	if err != nil {
		clog.FromContext(ctx).Error("failed to get build description", "build", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toBuildResponse(*cause, description))
}

// BuildStarted handles the start event. Reporting happens synchronously;
// Bitbucket failures are logged by the BuildService and not surfaced here.
func (h *Handler) BuildStarted(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	var req BuildStartedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cause, err := h.causes.Get(ctx, id)
	if err != nil {
		clog.FromContext(ctx).Error("failed to look up build", "build", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.builds.OnStarted(ctx, cause, &causeBuild{store: h.causes, buildID: id, url: req.URL})

	if cause == nil {
		writeJSON(w, http.StatusAccepted, EventResponse{Ignored: true})
		return
	}
	writeJSON(w, http.StatusAccepted, EventResponse{State: model.BuildStateInProgress.String()})
}

// BuildFinished handles the finish event. The cause is removed afterwards so
// a build reports at most one terminal state.
func (h *Handler) BuildFinished(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	var req BuildFinishedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := model.ParseBuildResult(strings.ToUpper(req.Result))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cause, err := h.causes.Get(ctx, id)
	if err != nil {
		clog.FromContext(ctx).Error("failed to look up build", "build", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.builds.OnCompleted(ctx, cause, result, req.URL)

	if cause == nil {
		writeJSON(w, http.StatusAccepted, EventResponse{Ignored: true})
		return
	}

	if err := h.causes.Delete(ctx, id); err != nil {
		clog.FromContext(ctx).Warn("failed to remove finished build", "build", id, "error", err)
	}
	writeJSON(w, http.StatusAccepted, EventResponse{State: result.TerminalState().String()})
}

// ListPullRequests returns the configured repository's pull requests.
func (h *Handler) ListPullRequests(w http.ResponseWriter, r *http.Request) {
	client, ok := h.client(w)
	if !ok {
		return
	}

	prs, err := client.ListPullRequests(r.Context())
	if err != nil {
		clog.FromContext(r.Context()).Warn("failed to list pull requests", "partial", len(prs), "error", err)
		writeError(w, http.StatusBadGateway, "bitbucket request failed")
		return
	}

	resp := make([]PullRequestResponse, 0, len(prs))
	for _, pr := range prs {
		resp = append(resp, toPullRequestResponse(pr))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListComments returns a pull request's comments with rendered HTML. The
// owner and repo query parameters select the repository holding the pull
// request when it differs from the configured one.
func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	client, ok := h.client(w)
	if !ok {
		return
	}

	id := r.PathValue("id")
	q := r.URL.Query()

	comments, err := client.ListPullRequestComments(r.Context(), q.Get("owner"), q.Get("repo"), id)
	if err != nil {
		clog.FromContext(r.Context()).Warn("failed to list comments", "pull_request", id, "error", err)
		writeError(w, http.StatusBadGateway, "bitbucket request failed")
		return
	}

	resp := make([]CommentResponse, 0, len(comments))
	for _, c := range comments {
		resp = append(resp, toCommentResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

// PostComment adds a comment to a pull request.
func (h *Handler) PostComment(w http.ResponseWriter, r *http.Request) {
	client, ok := h.client(w)
	if !ok {
		return
	}

	var req PostCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	id := r.PathValue("id")
	comment, err := client.PostPullRequestComment(r.Context(), id, req.Content)
	if err != nil {
		clog.FromContext(r.Context()).Warn("failed to post comment", "pull_request", id, "error", err)
		writeError(w, http.StatusBadGateway, "bitbucket request failed")
		return
	}

	if comment == nil {
		comment = &model.Comment{PullRequestID: id, Content: req.Content}
	}
	writeJSON(w, http.StatusCreated, toCommentResponse(*comment))
}

// Approve approves a pull request as the configured user.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	client, ok := h.client(w)
	if !ok {
		return
	}

	id := r.PathValue("id")
	participant, err := client.PostPullRequestApproval(r.Context(), id)
	if err != nil {
		clog.FromContext(r.Context()).Warn("failed to approve pull request", "pull_request", id, "error", err)
		writeError(w, http.StatusBadGateway, "bitbucket request failed")
		return
	}

	resp := ApprovalResponse{Approved: true}
	if participant != nil {
		resp.Approver = participant.Name
	}
	writeJSON(w, http.StatusOK, resp)
}

// Unapprove withdraws the configured user's approval.
func (h *Handler) Unapprove(w http.ResponseWriter, r *http.Request) {
	client, ok := h.client(w)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if err := client.DeletePullRequestApproval(r.Context(), id); err != nil {
		clog.FromContext(r.Context()).Warn("failed to remove approval", "pull_request", id, "error", err)
		writeError(w, http.StatusBadGateway, "bitbucket request failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetStatus reports whether a build status with the given key suffix exists
// on a revision.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	client, ok := h.client(w)
	if !ok {
		return
	}

	revision := r.PathValue("revision")
	q := r.URL.Query()
	suffix := q.Get("key")
	if suffix == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}

	present, err := client.HasBuildStatus(r.Context(), q.Get("owner"), q.Get("repo"), revision, suffix)
	if err != nil {
		clog.FromContext(r.Context()).Warn("failed to check build status", "revision", revision, "error", err)
		writeError(w, http.StatusBadGateway, "bitbucket request failed")
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Revision: revision,
		Key:      client.BuildStatusKey(suffix),
		Present:  present,
	})
}

// SetCredentials rotates the Bitbucket credentials.
func (h *Handler) SetCredentials(w http.ResponseWriter, r *http.Request) {
	if h.credentials == nil {
		writeError(w, http.StatusNotImplemented, "credential rotation is not enabled")
		return
	}

	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.credentials.Rotate(r.Context(), req.Username, req.Password); err != nil {
		if errors.Is(err, application.ErrMissingCredentials) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		clog.FromContext(r.Context()).Error("failed to rotate credentials", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	}
	if client := h.provider.Get(); client != nil {
		resp.BitbucketConfigured = true
		resp.Variant = string(client.Variant())
	}
	writeJSON(w, http.StatusOK, resp)
}

// client returns the live HostingClient, writing a 503 when none is set.
func (h *Handler) client(w http.ResponseWriter) (driven.HostingClient, bool) {
	client := h.provider.Get()
	if client == nil {
		writeError(w, http.StatusServiceUnavailable, "bitbucket credentials not configured")
		return nil, false
	}
	return client, true
}
