package model

// PullRequest represents a Bitbucket pull request as returned by either the
// Cloud or the Server API. Values are rebuilt on every fetch and never mutated
// after the clone-link backfill.
type PullRequest struct {
	Variant     Variant
	ID          string
	Title       string
	State       string
	Author      string
	Source      Ref
	Destination Ref
}

// Ref is one side of a pull request: the branch, its head commit and the
// repository it lives in.
type Ref struct {
	Branch     string
	Commit     string
	Repository Repository
}
