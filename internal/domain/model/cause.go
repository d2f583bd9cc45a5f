package model

import "fmt"

// Cause ties a build run to the pull request that triggered it. A build without
// a Cause was not started by this integration and must be left alone.
type Cause struct {
	BuildID                    string
	PullRequestID              string
	Title                      string
	SourceBranch               string
	TargetBranch               string
	RepositoryOwner            string
	RepositoryName             string
	DestinationRepositoryOwner string
	DestinationRepositoryName  string
	SourceCommitHash           string
	DestinationCommitHash      string
	JobName                    string // Suffix of the build status key.
}

// ShortDescription is the one-line summary used as the build description.
func (c Cause) ShortDescription() string {
	if c.Title == "" {
		return fmt.Sprintf("#%s", c.PullRequestID)
	}
	return fmt.Sprintf("#%s: %s", c.PullRequestID, c.Title)
}
