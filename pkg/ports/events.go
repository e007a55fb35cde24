package ports

import (
	"context"

	"github.com/aretw0/errand/pkg/domain"
)

// EventPublisher receives every stream frame a task produces.
// Implementations must not block the caller for long; failures are logged by
// the orchestrator and never affect the user-facing turn.
type EventPublisher interface {
	Publish(ctx context.Context, evt domain.StreamEvent) error
}

// LocationHint is what the caller knows about where the user is.
type LocationHint struct {
	Location *domain.Location
	ClientIP string
}

// Locator resolves a hint into a usable location.
type Locator interface {
	Locate(ctx context.Context, hint LocationHint) (*domain.Location, error)
}
