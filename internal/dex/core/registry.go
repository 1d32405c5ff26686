package core

import (
	"fmt"

	"github.com/you/dex-arb/internal/types"
)

// Factory builds the adapter for one configured venue.
type Factory func(vc types.VenueConfig, deps Deps) (Adapter, error)

// Registry selects the adapter variant by venue kind.
type Registry map[types.VenueKind]Factory

func (r Registry) Register(kind types.VenueKind, f Factory) { r[kind] = f }

// Build instantiates every venue in configuration order.
func (r Registry) Build(cfgs []types.VenueConfig, deps Deps) ([]Venue, error) {
	out := make([]Venue, 0, len(cfgs))
	seen := make(map[types.VenueID]struct{}, len(cfgs))
	for _, vc := range cfgs {
		if _, dup := seen[vc.ID]; dup {
			return nil, fmt.Errorf("duplicate venue id %q", vc.ID)
		}
		seen[vc.ID] = struct{}{}

		f, ok := r[vc.Kind]
		if !ok {
			return nil, fmt.Errorf("venue %s: unsupported kind %q", vc.ID, vc.Kind)
		}
		a, err := f(vc, deps)
		if err != nil {
			return nil, fmt.Errorf("venue %s: %w", vc.ID, err)
		}
		out = append(out, Venue{Config: vc, Adapter: a})
	}
	return out, nil
}
