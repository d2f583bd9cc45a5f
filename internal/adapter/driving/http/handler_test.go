package httphandler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httphandler "github.com/ericfisherdev/prstatus/internal/adapter/driving/http"
	"github.com/ericfisherdev/prstatus/internal/application"
	"github.com/ericfisherdev/prstatus/internal/domain/model"
	"github.com/ericfisherdev/prstatus/internal/domain/port/driven"
)

// --- Mock implementations ---

type mockCauseStore struct {
	mu           sync.Mutex
	causes       map[string]model.Cause
	descriptions map[string]string
	err          error
}

func newMockCauseStore() *mockCauseStore {
	return &mockCauseStore{causes: map[string]model.Cause{}, descriptions: map[string]string{}}
}

func (m *mockCauseStore) Register(_ context.Context, cause model.Cause) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.causes[cause.BuildID] = cause
	delete(m.descriptions, cause.BuildID)
	return nil
}

func (m *mockCauseStore) Get(_ context.Context, buildID string) (*model.Cause, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.causes[buildID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *mockCauseStore) SetDescription(_ context.Context, buildID, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.descriptions[buildID] = description
	return nil
}

func (m *mockCauseStore) Description(_ context.Context, buildID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.descriptions[buildID], nil
}

func (m *mockCauseStore) Delete(_ context.Context, buildID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.causes, buildID)
	return nil
}

type statusCall struct {
	Revision  string
	State     model.BuildState
	BuildURL  string
	KeySuffix string
}

type mockHostingClient struct {
	prs         []model.PullRequest
	comments    []model.Comment
	participant *model.Participant
	present     bool
	err         error

	statusCalls   []statusCall
	commentPosts  []string
	approvals     []string
	unapprovals   []string
	queries []string
}

func (m *mockHostingClient) Name() string           { return "mock" }
func (m *mockHostingClient) Variant() model.Variant { return model.VariantServer }

func (m *mockHostingClient) BuildStatusKey(suffix string) string { return "ci-" + suffix }

func (m *mockHostingClient) ListPullRequests(_ context.Context) ([]model.PullRequest, error) {
	return m.prs, m.err
}

func (m *mockHostingClient) ListPullRequestComments(_ context.Context, owner, repo, _ string) ([]model.Comment, error) {
	m.queries = append(m.queries, owner+"/"+repo)
	return m.comments, m.err
}

func (m *mockHostingClient) HasBuildStatus(_ context.Context, owner, repo, revision, keySuffix string) (bool, error) {
	m.queries = append(m.queries, owner+"/"+repo+"@"+revision+"#"+keySuffix)
	return m.present, m.err
}

func (m *mockHostingClient) SetBuildStatus(_ context.Context, _, _, revision string, state model.BuildState, buildURL, _, keySuffix string) error {
	m.statusCalls = append(m.statusCalls, statusCall{Revision: revision, State: state, BuildURL: buildURL, KeySuffix: keySuffix})
	return m.err
}

func (m *mockHostingClient) DeletePullRequestApproval(_ context.Context, prID string) error {
	m.unapprovals = append(m.unapprovals, prID)
	return m.err
}

func (m *mockHostingClient) PostPullRequestApproval(_ context.Context, prID string) (*model.Participant, error) {
	m.approvals = append(m.approvals, prID)
	return m.participant, m.err
}

func (m *mockHostingClient) PostPullRequestComment(_ context.Context, prID, content string) (*model.Comment, error) {
	m.commentPosts = append(m.commentPosts, content)
	if m.err != nil {
		return nil, m.err
	}
	return &model.Comment{ID: 1, PullRequestID: prID, Content: content}, nil
}

// --- Test helpers ---

type testEnv struct {
	mux      http.Handler
	causes   *mockCauseStore
	client   *mockHostingClient
	provider *application.HostingClientProvider
}

func setupEnv(t *testing.T, client *mockHostingClient, approve bool) *testEnv {
	t.Helper()

	var hc driven.HostingClient
	if client != nil {
		hc = client
	}
	provider := application.NewHostingClientProvider(hc)

	builds, err := application.NewBuildService(provider, httphandler.StaticHost("https://ci.example.com"), approve)
	require.NoError(t, err)

	causes := newMockCauseStore()
	creds := application.NewCredentialService(nil, provider, func(_, _ string) (driven.HostingClient, error) {
		return &mockHostingClient{}, nil
	})

	h := httphandler.NewHandler(causes, builds, provider, creds)
	return &testEnv{
		mux:      httphandler.NewServeMux(h, slog.Default()),
		causes:   causes,
		client:   client,
		provider: provider,
	}
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}

	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func registerRequest() map[string]any {
	return map[string]any{
		"build_id":           "b1",
		"pull_request_id":    "42",
		"title":              "Add retry",
		"repository_owner":   "acme",
		"repository_name":    "service",
		"source_commit_hash": "abc123",
		"job_name":           "service-pr",
	}
}

// --- Tests ---

func TestRegisterBuild(t *testing.T) {
	env := setupEnv(t, &mockHostingClient{}, false)

	rec := env.do(t, http.MethodPost, "/api/v1/builds", registerRequest())

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp httphandler.BuildResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "b1", resp.BuildID)
	assert.Equal(t, "service-pr", resp.JobName)

	cause, err := env.causes.Get(context.Background(), "b1")
	require.NoError(t, err)
	require.NotNil(t, cause)
	assert.Equal(t, "abc123", cause.SourceCommitHash)
}

func TestRegisterBuild_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{name: "malformed JSON", body: "{not json"},
		{name: "missing build id", body: map[string]any{"pull_request_id": "1", "source_commit_hash": "a"}},
		{name: "missing pull request id", body: map[string]any{"build_id": "b", "source_commit_hash": "a"}},
		{name: "missing commit", body: map[string]any{"build_id": "b", "pull_request_id": "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupEnv(t, &mockHostingClient{}, false)
			rec := env.do(t, http.MethodPost, "/api/v1/builds", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestRegisterBuild_StoreError(t *testing.T) {
	env := setupEnv(t, &mockHostingClient{}, false)
	env.causes.err = errors.New("disk full")

	rec := env.do(t, http.MethodPost, "/api/v1/builds", registerRequest())
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestBuildLifecycle(t *testing.T) {
	client := &mockHostingClient{participant: &model.Participant{Name: "ci-bot"}}
	env := setupEnv(t, client, true)

	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/v1/builds", registerRequest()).Code)

	rec := env.do(t, http.MethodPost, "/api/v1/builds/b1/started", map[string]string{"url": "/job/service-pr/7/"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var started httphandler.EventResponse
	decodeJSON(t, rec, &started)
	assert.False(t, started.Ignored)
	assert.Equal(t, "INPROGRESS", started.State)

	rec = env.do(t, http.MethodGet, "/api/v1/builds/b1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var build httphandler.BuildResponse
	decodeJSON(t, rec, &build)
	assert.Equal(t, "#42: Add retry", build.Description)

	rec = env.do(t, http.MethodPost, "/api/v1/builds/b1/finished", map[string]string{"result": "success", "url": "/job/service-pr/7/"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var finished httphandler.EventResponse
	decodeJSON(t, rec, &finished)
	assert.Equal(t, "SUCCESSFUL", finished.State)

	assert.Equal(t, []statusCall{
		{Revision: "abc123", State: model.BuildStateInProgress, BuildURL: "https://ci.example.com/job/service-pr/7/", KeySuffix: "service-pr"},
		{Revision: "abc123", State: model.BuildStateSuccessful, BuildURL: "https://ci.example.com/job/service-pr/7/", KeySuffix: "service-pr"},
	}, client.statusCalls)
	assert.Equal(t, []string{"SUCCESSFUL"}, client.commentPosts)
	assert.Equal(t, []string{"42"}, client.approvals)

	// The cause is gone after the terminal event; a repeat finish is ignored.
	rec = env.do(t, http.MethodPost, "/api/v1/builds/b1/finished", map[string]string{"result": "FAILURE"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var repeat httphandler.EventResponse
	decodeJSON(t, rec, &repeat)
	assert.True(t, repeat.Ignored)
	assert.Len(t, client.statusCalls, 2)
}

func TestBuildEvents_UnknownBuildIgnored(t *testing.T) {
	client := &mockHostingClient{}
	env := setupEnv(t, client, true)

	for _, path := range []string{"/api/v1/builds/nope/started", "/api/v1/builds/nope/finished"} {
		rec := env.do(t, http.MethodPost, path, map[string]string{"result": "SUCCESS", "url": "/job/x/1/"})
		require.Equal(t, http.StatusAccepted, rec.Code, path)

		var resp httphandler.EventResponse
		decodeJSON(t, rec, &resp)
		assert.True(t, resp.Ignored, path)
	}

	assert.Empty(t, client.statusCalls)
	assert.Empty(t, client.commentPosts)
	assert.Empty(t, client.approvals)
}

func TestBuildFinished_InvalidResult(t *testing.T) {
	env := setupEnv(t, &mockHostingClient{}, false)

	rec := env.do(t, http.MethodPost, "/api/v1/builds/b1/finished", map[string]string{"result": "MAYBE"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBuildFinished_FailureDoesNotApprove(t *testing.T) {
	client := &mockHostingClient{}
	env := setupEnv(t, client, true)
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/v1/builds", registerRequest()).Code)

	rec := env.do(t, http.MethodPost, "/api/v1/builds/b1/finished", map[string]string{"result": "UNSTABLE", "url": "/job/x/1/"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	assert.Equal(t, []string{"FAILED"}, client.commentPosts)
	assert.Empty(t, client.approvals)
}

func TestGetBuild_NotFound(t *testing.T) {
	env := setupEnv(t, &mockHostingClient{}, false)

	rec := env.do(t, http.MethodGet, "/api/v1/builds/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListPullRequests(t *testing.T) {
	client := &mockHostingClient{prs: []model.PullRequest{{
		ID:      "7",
		Variant: model.VariantServer,
		Title:   "Fix bug",
		Author:  "alice",
		Source: model.Ref{
			Branch: "fix",
			Commit: "abc",
			Repository: model.Repository{
				FullName: "PROJ/repo",
				Links:    model.RepositoryLinks{Clone: []model.Link{{Name: "http", Href: "https://example.com/repo.git"}}},
			},
		},
		Destination: model.Ref{Branch: "main"},
	}}}
	env := setupEnv(t, client, false)

	rec := env.do(t, http.MethodGet, "/api/v1/pull-requests", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var prs []map[string]any
	decodeJSON(t, rec, &prs)
	require.Len(t, prs, 1)
	assert.Equal(t, "7", prs[0]["id"])
	assert.Equal(t, "server", prs[0]["variant"])
	assert.Equal(t, "fix", prs[0]["source_branch"])
	assert.Equal(t, "main", prs[0]["target_branch"])
	assert.Equal(t, []any{"https://example.com/repo.git"}, prs[0]["source_clone_links"])
}

func TestListPullRequests_EmptyIsArray(t *testing.T) {
	env := setupEnv(t, &mockHostingClient{}, false)

	rec := env.do(t, http.MethodGet, "/api/v1/pull-requests", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestBitbucketEndpoints_NoClient(t *testing.T) {
	env := setupEnv(t, nil, false)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/pull-requests"},
		{http.MethodGet, "/api/v1/pull-requests/1/comments"},
		{http.MethodPost, "/api/v1/pull-requests/1/approval"},
		{http.MethodDelete, "/api/v1/pull-requests/1/approval"},
		{http.MethodGet, "/api/v1/status/abc?key=job"},
	} {
		rec := env.do(t, tc.method, tc.path, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, tc.method+" "+tc.path)
	}
}

func TestBitbucketEndpoints_UpstreamError(t *testing.T) {
	env := setupEnv(t, &mockHostingClient{err: errors.New("502 from bitbucket")}, false)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/pull-requests"},
		{http.MethodGet, "/api/v1/pull-requests/1/comments"},
		{http.MethodPost, "/api/v1/pull-requests/1/approval"},
		{http.MethodDelete, "/api/v1/pull-requests/1/approval"},
		{http.MethodGet, "/api/v1/status/abc?key=job"},
	} {
		rec := env.do(t, tc.method, tc.path, nil)
		assert.Equal(t, http.StatusBadGateway, rec.Code, tc.method+" "+tc.path)
	}
}

func TestListComments_RendersMarkdown(t *testing.T) {
	client := &mockHostingClient{comments: []model.Comment{
		{ID: 1, Content: "**looks good**", Author: &model.Participant{Name: "bob"}},
		{ID: 2, Content: `<script>alert("x")</script>`},
	}}
	env := setupEnv(t, client, false)

	rec := env.do(t, http.MethodGet, "/api/v1/pull-requests/3/comments?owner=fork&repo=service", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var comments []httphandler.CommentResponse
	decodeJSON(t, rec, &comments)
	require.Len(t, comments, 2)
	assert.Equal(t, "bob", comments[0].Author)
	assert.Contains(t, comments[0].ContentHTML, "<strong>looks good</strong>")
	assert.NotContains(t, comments[1].ContentHTML, "<script>")
	assert.Equal(t, []string{"fork/service"}, client.queries)
}

func TestPostComment(t *testing.T) {
	client := &mockHostingClient{}
	env := setupEnv(t, client, false)

	rec := env.do(t, http.MethodPost, "/api/v1/pull-requests/3/comments", map[string]string{"content": "rebuild please"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []string{"rebuild please"}, client.commentPosts)

	rec = env.do(t, http.MethodPost, "/api/v1/pull-requests/3/comments", map[string]string{"content": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApproval(t *testing.T) {
	client := &mockHostingClient{participant: &model.Participant{Name: "ci-bot", Approved: true}}
	env := setupEnv(t, client, false)

	rec := env.do(t, http.MethodPost, "/api/v1/pull-requests/9/approval", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp httphandler.ApprovalResponse
	decodeJSON(t, rec, &resp)
	assert.True(t, resp.Approved)
	assert.Equal(t, "ci-bot", resp.Approver)

	rec = env.do(t, http.MethodDelete, "/api/v1/pull-requests/9/approval", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, []string{"9"}, client.approvals)
	assert.Equal(t, []string{"9"}, client.unapprovals)
}

func TestGetStatus(t *testing.T) {
	client := &mockHostingClient{present: true}
	env := setupEnv(t, client, false)

	rec := env.do(t, http.MethodGet, "/api/v1/status/abc123?owner=acme&repo=service&key=job", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp httphandler.StatusResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, httphandler.StatusResponse{Revision: "abc123", Key: "ci-job", Present: true}, resp)
	assert.Equal(t, []string{"acme/service@abc123#job"}, client.queries)

	rec = env.do(t, http.MethodGet, "/api/v1/status/abc123", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetCredentials(t *testing.T) {
	env := setupEnv(t, nil, false)

	rec := env.do(t, http.MethodPut, "/api/v1/credentials", map[string]string{"username": "ci-bot", "password": "pw"})
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, env.provider.HasClient())

	rec = env.do(t, http.MethodPut, "/api/v1/credentials", map[string]string{"username": "ci-bot"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	env := setupEnv(t, &mockHostingClient{}, false)

	rec := env.do(t, http.MethodGet, "/api/v1/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp httphandler.HealthResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.BitbucketConfigured)
	assert.Equal(t, "server", resp.Variant)
	assert.NotEmpty(t, resp.Time)
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupEnv(t, &mockHostingClient{}, false)
	env.do(t, http.MethodGet, "/api/v1/health", nil)

	rec := env.do(t, http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "prstatus_http_request_duration_seconds"))
}
