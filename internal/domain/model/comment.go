package model

// Comment is a pull-request level comment.
type Comment struct {
	ID            int64
	PullRequestID string
	Content       string
	Author        *Participant // nil when the API did not report one.
}

// Participant is a user taking part in a pull request. Approved is set when
// the participant has approved the pull request.
type Participant struct {
	Name        string
	DisplayName string
	Role        string
	Approved    bool
}
