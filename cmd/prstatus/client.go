package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/prstatus/internal/adapter/driven/bitbucket"
	"github.com/ericfisherdev/prstatus/internal/domain/model"
	"github.com/ericfisherdev/prstatus/internal/domain/port/driven"
)

var errNoCredentials = errors.New("PRSTATUS_USERNAME and PRSTATUS_PASSWORD are required")

// newClient builds a HostingClient from the loaded configuration. It has the
// shape of application.ClientFactory.
func (a *app) newClient(username, password string) (driven.HostingClient, error) {
	cfg := a.cfg
	opts := bitbucket.Options{
		Variant:    cfg.Variant,
		ServerURL:  cfg.ServerURL,
		CloudURL:   cfg.CloudAPIURL,
		Owner:      cfg.Owner,
		Repository: cfg.Repository,
		KeyPrefix:  cfg.KeyPrefix,
		Name:       cfg.CIName,
		Transport: bitbucket.TransportOptions{
			Credentials: bitbucket.Credentials{Username: username, Password: password},
			Timeout:     cfg.Timeout,
			RateLimit:   cfg.RateLimit,
		},
	}
	if cfg.ProxyURL != "" {
		opts.Transport.Proxy = &bitbucket.ProxyConfig{
			URL:      cfg.ProxyURL,
			Username: cfg.ProxyUsername,
			Password: cfg.ProxyPassword,
		}
	}
	return bitbucket.NewClient(opts)
}

// configuredClient is the client used by the one-shot commands: it needs the
// repository and credentials from the environment.
func (a *app) configuredClient() (driven.HostingClient, error) {
	if err := a.cfg.RequireRepository(); err != nil {
		return nil, err
	}
	if !a.cfg.HasCredentials() {
		return nil, errNoCredentials
	}
	return a.newClient(a.cfg.Username, a.cfg.Password)
}

func (a *app) newKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "key <suffix>",
		Short: "Print the build status key for a job name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), bitbucket.ComputeKey(a.cfg.KeyPrefix, args[0]))
			return nil
		},
	}
}

func (a *app) newPullRequestsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "prs",
		Aliases: []string{"pull-requests"},
		Short:   "List pull requests of the configured repository",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.configuredClient()
			if err != nil {
				return err
			}
			prs, err := client.ListPullRequests(cmd.Context())

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATE\tSOURCE\tTARGET\tCOMMIT\tTITLE")
			for _, pr := range prs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					pr.ID, pr.State, pr.Source.Branch, pr.Destination.Branch, shortCommit(pr.Source.Commit), pr.Title)
			}
			if flushErr := w.Flush(); flushErr != nil {
				return flushErr
			}
			return err
		},
	}
}

func (a *app) newCommentsCmd() *cobra.Command {
	var owner, repo string

	cmd := &cobra.Command{
		Use:   "comments <pull-request-id>",
		Short: "List the comments of a pull request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.configuredClient()
			if err != nil {
				return err
			}
			comments, err := client.ListPullRequestComments(cmd.Context(), owner, repo, args[0])

			out := cmd.OutOrStdout()
			for _, c := range comments {
				author := "-"
				if c.Author != nil {
					author = c.Author.Name
				}
				fmt.Fprintf(out, "#%d %s: %s\n", c.ID, author, c.Content)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "repository owner holding the comments (default: configured owner)")
	cmd.Flags().StringVar(&repo, "repo", "", "repository holding the comments (default: configured repository)")
	return cmd
}

func (a *app) newCommentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "comment <pull-request-id> <text>...",
		Short: "Post a comment on a pull request",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.configuredClient()
			if err != nil {
				return err
			}
			comment, err := client.PostPullRequestComment(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			if comment != nil && comment.ID != 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "comment %d posted\n", comment.ID)
			}
			return nil
		},
	}
}

func (a *app) newApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <pull-request-id>",
		Short: "Approve a pull request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.configuredClient()
			if err != nil {
				return err
			}
			participant, err := client.PostPullRequestApproval(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if participant != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "approved by %s\n", participant.Name)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "approved")
			return nil
		},
	}
}

func (a *app) newUnapproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unapprove <pull-request-id>",
		Short: "Withdraw approval of a pull request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.configuredClient()
			if err != nil {
				return err
			}
			return client.DeletePullRequestApproval(cmd.Context(), args[0])
		},
	}
}

func (a *app) newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Read or write commit build statuses",
	}
	cmd.AddCommand(a.newStatusCheckCmd(), a.newStatusSetCmd())
	return cmd
}

func (a *app) newStatusCheckCmd() *cobra.Command {
	var owner, repo, suffix string

	cmd := &cobra.Command{
		Use:   "check <revision>",
		Short: "Report whether a build status exists on a commit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.configuredClient()
			if err != nil {
				return err
			}
			present, err := client.HasBuildStatus(cmd.Context(), owner, repo, args[0], suffix)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s present=%t\n", args[0], client.BuildStatusKey(suffix), present)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "repository owner (default: configured owner)")
	cmd.Flags().StringVar(&repo, "repo", "", "repository (default: configured repository)")
	cmd.Flags().StringVar(&suffix, "job", "", "job name appended to the key prefix")
	return cmd
}

func (a *app) newStatusSetCmd() *cobra.Command {
	var owner, repo, suffix, buildURL, comment string

	cmd := &cobra.Command{
		Use:   "set <revision> <INPROGRESS|SUCCESSFUL|FAILED>",
		Short: "Write a build status on a commit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := model.ParseBuildState(args[1])
			if err != nil {
				return err
			}
			client, err := a.configuredClient()
			if err != nil {
				return err
			}
			return client.SetBuildStatus(cmd.Context(), owner, repo, args[0], state, buildURL, comment, suffix)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "repository owner (default: configured owner)")
	cmd.Flags().StringVar(&repo, "repo", "", "repository (default: configured repository)")
	cmd.Flags().StringVar(&suffix, "job", "", "job name appended to the key prefix")
	cmd.Flags().StringVar(&buildURL, "url", "", "link shown with the status")
	cmd.Flags().StringVar(&comment, "comment", "", "status description")
	return cmd
}

func shortCommit(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
