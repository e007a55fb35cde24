package tools

import (
	"context"
	"net/netip"

	"github.com/aretw0/errand/pkg/domain"
	"github.com/aretw0/errand/pkg/ports"
)

// Locator resolves location hints with the simulated geocoder. Coordinates
// are trusted as given, an address is geocoded, and a public client IP maps
// to a coarse pseudo location. Anything else resolves to nil.
type Locator struct {
	sim *Simulated
}

var _ ports.Locator = (*Locator)(nil)

// NewLocator creates a Locator over sim.
func NewLocator(sim *Simulated) *Locator {
	return &Locator{sim: sim}
}

// Locate implements ports.Locator.
func (l *Locator) Locate(ctx context.Context, hint ports.LocationHint) (*domain.Location, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if loc := hint.Location; loc != nil {
		if loc.HasCoordinates() || loc.Address == "" {
			out := *loc
			return &out, nil
		}
		resolved := l.sim.Resolve(loc.Address)
		if loc.City != "" {
			resolved.City = loc.City
		}
		resolved.Country = loc.Country
		return &resolved, nil
	}

	addr, err := netip.ParseAddr(hint.ClientIP)
	if err != nil || !addr.IsGlobalUnicast() || addr.IsPrivate() {
		return nil, nil
	}
	loc := l.sim.Resolve("ip:" + addr.String())
	loc.Address = ""
	loc.City = ""
	return &loc, nil
}
