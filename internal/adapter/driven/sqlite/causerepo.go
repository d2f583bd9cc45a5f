package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ericfisherdev/prstatus/internal/domain/model"
	"github.com/ericfisherdev/prstatus/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CauseStore = (*CauseRepo)(nil)

// ErrCauseNotFound is returned by SetDescription for unregistered builds.
var ErrCauseNotFound = errors.New("build cause not found")

// CauseRepo is the SQLite implementation of the CauseStore port.
type CauseRepo struct {
	db *DB
}

// NewCauseRepo creates a CauseRepo backed by db.
func NewCauseRepo(db *DB) *CauseRepo {
	return &CauseRepo{db: db}
}

// Register stores cause, replacing any previous cause for the same build and
// clearing its description.
func (r *CauseRepo) Register(ctx context.Context, cause model.Cause) error {
	const query = `
		INSERT INTO causes (
			build_id, pull_request_id, title, source_branch, target_branch,
			repository_owner, repository_name,
			destination_repository_owner, destination_repository_name,
			source_commit_hash, destination_commit_hash, job_name, description
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '')
		ON CONFLICT(build_id) DO UPDATE SET
			pull_request_id = excluded.pull_request_id,
			title = excluded.title,
			source_branch = excluded.source_branch,
			target_branch = excluded.target_branch,
			repository_owner = excluded.repository_owner,
			repository_name = excluded.repository_name,
			destination_repository_owner = excluded.destination_repository_owner,
			destination_repository_name = excluded.destination_repository_name,
			source_commit_hash = excluded.source_commit_hash,
			destination_commit_hash = excluded.destination_commit_hash,
			job_name = excluded.job_name,
			description = '',
			created_at = CURRENT_TIMESTAMP
	`

	_, err := r.db.Writer.ExecContext(ctx, query,
		cause.BuildID, cause.PullRequestID, cause.Title, cause.SourceBranch, cause.TargetBranch,
		cause.RepositoryOwner, cause.RepositoryName,
		cause.DestinationRepositoryOwner, cause.DestinationRepositoryName,
		cause.SourceCommitHash, cause.DestinationCommitHash, cause.JobName,
	)
	if err != nil {
		return fmt.Errorf("register cause for build %q: %w", cause.BuildID, err)
	}
	return nil
}

// Get returns (nil, nil) when buildID has no registered cause.
func (r *CauseRepo) Get(ctx context.Context, buildID string) (*model.Cause, error) {
	const query = `
		SELECT build_id, pull_request_id, title, source_branch, target_branch,
			repository_owner, repository_name,
			destination_repository_owner, destination_repository_name,
			source_commit_hash, destination_commit_hash, job_name
		FROM causes
		WHERE build_id = ?
	`

	var c model.Cause
	err := r.db.Reader.QueryRowContext(ctx, query, buildID).Scan(
		&c.BuildID, &c.PullRequestID, &c.Title, &c.SourceBranch, &c.TargetBranch,
		&c.RepositoryOwner, &c.RepositoryName,
		&c.DestinationRepositoryOwner, &c.DestinationRepositoryName,
		&c.SourceCommitHash, &c.DestinationCommitHash, &c.JobName,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cause for build %q: %w", buildID, err)
	}
	return &c, nil
}

// SetDescription records the description shown on the build.
func (r *CauseRepo) SetDescription(ctx context.Context, buildID, description string) error {
	const query = `UPDATE causes SET description = ? WHERE build_id = ?`
	res, err := r.db.Writer.ExecContext(ctx, query, description, buildID)
	if err != nil {
		return fmt.Errorf("set description for build %q: %w", buildID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set description for build %q: %w", buildID, err)
	}
	if n == 0 {
		return fmt.Errorf("set description for build %q: %w", buildID, ErrCauseNotFound)
	}
	return nil
}

// Description returns "" when the build is unknown or has no description.
func (r *CauseRepo) Description(ctx context.Context, buildID string) (string, error) {
	const query = `SELECT description FROM causes WHERE build_id = ?`
	var desc string
	err := r.db.Reader.QueryRowContext(ctx, query, buildID).Scan(&desc)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get description for build %q: %w", buildID, err)
	}
	return desc, nil
}

// Delete removes the cause for buildID. Unknown builds are ignored.
func (r *CauseRepo) Delete(ctx context.Context, buildID string) error {
	const query = `DELETE FROM causes WHERE build_id = ?`
	if _, err := r.db.Writer.ExecContext(ctx, query, buildID); err != nil {
		return fmt.Errorf("delete cause for build %q: %w", buildID, err)
	}
	return nil
}
