package driven

import (
	"context"

	"github.com/ericfisherdev/prstatus/internal/domain/model"
)

// CauseStore defines the driven port for the build → cause registry the
// trigger writes when it schedules a pull-request build.
type CauseStore interface {
	// Register stores the cause for cause.BuildID, replacing any previous one.
	Register(ctx context.Context, cause model.Cause) error
	// Get returns (nil, nil) if the build was not registered.
	Get(ctx context.Context, buildID string) (*model.Cause, error)
	// SetDescription records the description set on the build.
	SetDescription(ctx context.Context, buildID, description string) error
	// Description returns "" if none has been set.
	Description(ctx context.Context, buildID string) (string, error)
	Delete(ctx context.Context, buildID string) error
}
