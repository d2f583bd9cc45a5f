package bitbucket_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/prstatus/internal/adapter/driven/bitbucket"
	"github.com/ericfisherdev/prstatus/internal/domain/model"
	"github.com/ericfisherdev/prstatus/internal/domain/port/driven"
)

const (
	testUser     = "ci-bot"
	testPassword = "s3cret"
)

// newTestTransport creates a Transport against the given handler.
func newTestTransport(t *testing.T, handler http.Handler) (*bitbucket.Transport, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	tr, err := bitbucket.NewTransport(bitbucket.TransportOptions{
		Credentials: bitbucket.Credentials{Username: testUser, Password: testPassword},
	})
	require.NoError(t, err)

	return tr, server
}

// newTestClient creates a HostingClient of the given variant backed by handler.
func newTestClient(t *testing.T, variant model.Variant, handler http.Handler) (driven.HostingClient, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := bitbucket.NewClient(bitbucket.Options{
		Variant:    variant,
		ServerURL:  server.URL,
		CloudURL:   server.URL,
		Owner:      "PROJ",
		Repository: "repo",
		KeyPrefix:  "ci",
		Name:       "prstatus",
		Transport: bitbucket.TransportOptions{
			Credentials: bitbucket.Credentials{Username: testUser, Password: testPassword},
		},
	})
	require.NoError(t, err)

	return client, server
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// readJSON decodes a request body; a malformed body decodes to nil.
func readJSON(r io.Reader) map[string]any {
	var m map[string]any
	_ = json.NewDecoder(r).Decode(&m)
	return m
}

// page builds a {values, next} page body.
func page(values any, next string) map[string]any {
	p := map[string]any{"values": values}
	if next != "" {
		p["next"] = next
	}
	return p
}
