// SPDX-License-Identifier: MPL-2.0

package deploy

import (
	"context"
	"errors"
	"fmt"
)

// Restore deploys the units recorded in the deployment store by an earlier
// process and reapplies their state. A record that fails to deploy is dropped
// and its error joined into the result. Without a store Restore does nothing.
func (s *Service) Restore(ctx context.Context) ([]*DeployedUnit, error) {
	store := s.registry.store
	if store == nil {
		return nil, nil
	}
	records, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}

	var (
		restored []*DeployedUnit
		errs     []error
	)
	for _, rec := range records {
		if s.registry.IsDeployed(rec.ID) {
			continue
		}
		// Deploy records the unit again.
		if err := store.Delete(ctx, rec.ID); err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", rec.ID, err))
			continue
		}
		u, err := ParseUnitID(rec.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", rec.ID, err))
			continue
		}
		du, err := s.Deploy(ctx, u)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if rec.State == StateInactive {
			s.Deactivate(ctx, rec.ID)
		}
		s.logger.Info("restored", "unit", rec.ID, "state", rec.State)
		restored = append(restored, du)
	}
	return restored, errors.Join(errs...)
}
