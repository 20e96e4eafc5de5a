package factory

import (
	"context"
	"fmt"

	"github.com/warp/vacation-engine/vacation"
)

// Seed creates every definition through the service and assigns it to the
// users it lists. It stops at the first error; policies created before the
// failure are kept.
func (f *PolicyFactory) Seed(ctx context.Context, svc *vacation.Service, defs []PolicyDefinition) ([]vacation.Policy, error) {
	created := make([]vacation.Policy, 0, len(defs))
	for _, def := range defs {
		p, err := f.FromDefinition(def)
		if err != nil {
			return created, fmt.Errorf("policy %q: %w", def.Name, err)
		}
		saved, err := svc.CreatePolicy(ctx, *p)
		if err != nil {
			return created, fmt.Errorf("create policy %q: %w", def.Name, err)
		}
		created = append(created, *saved)

		for _, user := range def.AssignTo {
			if _, err := svc.AssignPolicy(ctx, vacation.UserID(user), saved.ID); err != nil {
				return created, fmt.Errorf("assign policy %q to %s: %w", def.Name, user, err)
			}
		}
	}
	return created, nil
}
