package model

// MaxBuildStatusKeyLength is the longest key Bitbucket accepts for a commit
// build status.
const MaxBuildStatusKeyLength = 40

// CommitBuildState is the payload written to a commit's build-status resource.
// Key identifies the status entry: writing the same key again overwrites it.
type CommitBuildState struct {
	Key         string     `json:"key"`
	State       BuildState `json:"state"`
	URL         string     `json:"url"`
	Name        string     `json:"name,omitempty"`
	Description string     `json:"description,omitempty"`
}
