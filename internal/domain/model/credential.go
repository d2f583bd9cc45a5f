package model

import "time"

// Credential holds a stored secret for a named service, e.g. the Bitbucket
// password under "bitbucket.password".
type Credential struct {
	ID        int64
	Service   string
	Value     string
	UpdatedAt time.Time
}
