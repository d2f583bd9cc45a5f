package application_test

import (
	"context"
	"sync"

	"github.com/ericfisherdev/prstatus/internal/domain/model"
)

// --- Mock implementations ---

type statusCall struct {
	Owner, Repo, Revision string
	State                 model.BuildState
	BuildURL              string
	Comment               string
	KeySuffix             string
}

type commentCall struct {
	PullRequestID string
	Content       string
}

type mockHostingClient struct {
	mu sync.Mutex

	statusCalls   []statusCall
	commentCalls  []commentCall
	approvalCalls []string

	setBuildStatus func(ctx context.Context, call statusCall) error
	postComment    func(ctx context.Context, prID, content string) (*model.Comment, error)
	postApproval   func(ctx context.Context, prID string) (*model.Participant, error)
}

func (m *mockHostingClient) Name() string           { return "mock" }
func (m *mockHostingClient) Variant() model.Variant { return model.VariantCloud }

func (m *mockHostingClient) BuildStatusKey(suffix string) string { return "mock-" + suffix }

func (m *mockHostingClient) ListPullRequests(_ context.Context) ([]model.PullRequest, error) {
	return nil, nil
}

func (m *mockHostingClient) ListPullRequestComments(_ context.Context, _, _, _ string) ([]model.Comment, error) {
	return nil, nil
}

func (m *mockHostingClient) HasBuildStatus(_ context.Context, _, _, _, _ string) (bool, error) {
	return false, nil
}

func (m *mockHostingClient) SetBuildStatus(ctx context.Context, owner, repo, revision string, state model.BuildState, buildURL, comment, keySuffix string) error {
	call := statusCall{
		Owner: owner, Repo: repo, Revision: revision,
		State: state, BuildURL: buildURL, Comment: comment, KeySuffix: keySuffix,
	}
	m.mu.Lock()
	m.statusCalls = append(m.statusCalls, call)
	m.mu.Unlock()
	if m.setBuildStatus != nil {
		return m.setBuildStatus(ctx, call)
	}
	return nil
}

func (m *mockHostingClient) DeletePullRequestApproval(_ context.Context, _ string) error {
	return nil
}

func (m *mockHostingClient) PostPullRequestApproval(ctx context.Context, prID string) (*model.Participant, error) {
	m.mu.Lock()
	m.approvalCalls = append(m.approvalCalls, prID)
	m.mu.Unlock()
	if m.postApproval != nil {
		return m.postApproval(ctx, prID)
	}
	return nil, nil
}

func (m *mockHostingClient) PostPullRequestComment(ctx context.Context, prID, content string) (*model.Comment, error) {
	m.mu.Lock()
	m.commentCalls = append(m.commentCalls, commentCall{PullRequestID: prID, Content: content})
	m.mu.Unlock()
	if m.postComment != nil {
		return m.postComment(ctx, prID, content)
	}
	return &model.Comment{PullRequestID: prID, Content: content}, nil
}

func (m *mockHostingClient) totalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.statusCalls) + len(m.commentCalls) + len(m.approvalCalls)
}

type mockBuild struct {
	url            string
	descriptions   []string
	setDescription func(ctx context.Context, description string) error
}

func (b *mockBuild) URL() string { return b.url }

func (b *mockBuild) SetDescription(ctx context.Context, description string) error {
	b.descriptions = append(b.descriptions, description)
	if b.setDescription != nil {
		return b.setDescription(ctx, description)
	}
	return nil
}

type mockHost struct {
	rootURL string
}

func (h mockHost) RootURL() string { return h.rootURL }

type mockCredentialStore struct {
	values      map[string]string
	setErr      error
	getErr      error
	setAllCalls int
}

func newMockCredentialStore() *mockCredentialStore {
	return &mockCredentialStore{values: map[string]string{}}
}

func (s *mockCredentialStore) Set(ctx context.Context, service, plaintext string) error {
	return s.SetAll(ctx, map[string]string{service: plaintext})
}

func (s *mockCredentialStore) SetAll(_ context.Context, values map[string]string) error {
	s.setAllCalls++
	if s.setErr != nil {
		return s.setErr
	}
	for k, v := range values {
		s.values[k] = v
	}
	return nil
}

func (s *mockCredentialStore) Get(_ context.Context, service string) (string, error) {
	if s.getErr != nil {
		return "", s.getErr
	}
	return s.values[service], nil
}

func (s *mockCredentialStore) List(_ context.Context) ([]model.Credential, error) {
	creds := make([]model.Credential, 0, len(s.values))
	for k, v := range s.values {
		creds = append(creds, model.Credential{Service: k, Value: v})
	}
	return creds, nil
}

func (s *mockCredentialStore) Delete(_ context.Context, service string) error {
	delete(s.values, service)
	return nil
}
