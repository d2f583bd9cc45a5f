// Package bitbucket implements the HostingClient port for Bitbucket Cloud and
// Bitbucket Server.
package bitbucket

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chainguard-dev/clog"

	"github.com/ericfisherdev/prstatus/internal/domain/model"
	"github.com/ericfisherdev/prstatus/internal/domain/port/driven"
)

// DefaultCloudURL is the public Bitbucket Cloud API host.
const DefaultCloudURL = "https://api.bitbucket.org"

// ErrMissingServerURL is returned when a Server client is requested without
// a server URL.
var ErrMissingServerURL = errors.New("bitbucket server URL is required")

// Options configures a HostingClient.
type Options struct {
	Variant    model.Variant
	ServerURL  string // Required for VariantServer.
	CloudURL   string // DefaultCloudURL when empty.
	Owner      string
	Repository string
	KeyPrefix  string
	Name       string
	Transport  TransportOptions
}

// NewClient creates the HostingClient for opts.Variant.
func NewClient(opts Options) (driven.HostingClient, error) {
	t, err := NewTransport(opts.Transport)
	if err != nil {
		return nil, err
	}

	base := repoClient{
		transport:  t,
		owner:      opts.Owner,
		repository: opts.Repository,
		keyPrefix:  opts.KeyPrefix,
		name:       opts.Name,
	}

	switch opts.Variant {
	case model.VariantServer:
		if opts.ServerURL == "" {
			return nil, ErrMissingServerURL
		}
		return &ServerClient{repoClient: base, serverURL: strings.TrimRight(opts.ServerURL, "/")}, nil
	case model.VariantCloud, "":
		cloudURL := opts.CloudURL
		if cloudURL == "" {
			cloudURL = DefaultCloudURL
		}
		return &CloudClient{repoClient: base, apiURL: strings.TrimRight(cloudURL, "/")}, nil
	default:
		return nil, fmt.Errorf("creating bitbucket client: unknown variant %q", opts.Variant)
	}
}

// repoClient carries what both variants share: the transport and the
// repository the client was configured for.
type repoClient struct {
	transport  *Transport
	owner      string
	repository string
	keyPrefix  string
	name       string
}

// Name returns the CI name reported alongside build statuses.
func (c *repoClient) Name() string { return c.name }

// BuildStatusKey returns ComputeKey with the client's configured prefix.
func (c *repoClient) BuildStatusKey(suffix string) string {
	return ComputeKey(c.keyPrefix, suffix)
}

// backfillCloneLinks attaches links to every pull request whose source
// repository reports no clone links. Links already present are kept.
func backfillCloneLinks(ctx context.Context, prs []model.PullRequest, links *model.RepositoryLinks) {
	if links == nil {
		return
	}
	var filled int
	for i := range prs {
		if prs[i].Source.Repository.Links.IsEmpty() {
			prs[i].Source.Repository.Links = *links
			filled++
		}
	}
	clog.FromContext(ctx).Debug("clone links backfilled", "pull_requests", len(prs), "filled", filled)
}

// mapLinks converts wire clone links into the domain shape.
func mapLinks(in []linkJSON) model.RepositoryLinks {
	links := model.RepositoryLinks{Clone: make([]model.Link, 0, len(in))}
	for _, l := range in {
		links.Clone = append(links.Clone, model.Link{Name: l.Name, Href: l.Href})
	}
	return links
}

// linkJSON is a named link as both variants encode it.
type linkJSON struct {
	Name string `json:"name,omitempty"`
	Href string `json:"href"`
}
