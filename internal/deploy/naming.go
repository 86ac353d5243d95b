package deploy

import (
	"context"
	"fmt"

	"github.com/joyastack/joyastack/internal/database/queries"
)

// Names must be unique across their table at deploy time. A colliding
// name gets a -<N> suffix where N counts existing rows sharing the base
// prefix. The row id never changes.

func (c *Controller) ensureUniqueSliceName(ctx context.Context, slice queries.Slice) (string, error) {
	collisions, err := c.store.SliceCountByExactName(ctx, slice.Name, slice.ID)
	if err != nil {
		return "", fmt.Errorf("failed to check slice name collisions: %w", err)
	}
	if collisions == 0 {
		return slice.Name, nil
	}

	prefixed, err := c.store.SliceCountByNamePrefix(ctx, slice.Name, slice.ID)
	if err != nil {
		return "", fmt.Errorf("failed to count slice name prefix: %w", err)
	}

	name := fmt.Sprintf("%s-%d", slice.Name, prefixed)
	if err := c.store.SliceUpdateName(ctx, slice.ID, name); err != nil {
		return "", fmt.Errorf("failed to rename slice: %w", err)
	}

	c.logger.Info("Renamed slice to avoid collision", "slice_id", slice.ID, "name", name)
	return name, nil
}

func (c *Controller) ensureUniqueVMName(ctx context.Context, vm queries.Vm) (string, error) {
	collisions, err := c.store.VMCountByExactName(ctx, vm.Name, vm.ID)
	if err != nil {
		return "", fmt.Errorf("failed to check VM name collisions: %w", err)
	}
	if collisions == 0 {
		return vm.Name, nil
	}

	prefixed, err := c.store.VMCountByNamePrefix(ctx, vm.Name, vm.ID)
	if err != nil {
		return "", fmt.Errorf("failed to count VM name prefix: %w", err)
	}

	name := fmt.Sprintf("%s-%d", vm.Name, prefixed)
	if err := c.store.VMUpdateName(ctx, vm.ID, name); err != nil {
		return "", fmt.Errorf("failed to rename VM: %w", err)
	}

	c.logger.Info("Renamed VM to avoid collision", "vm_id", vm.ID, "name", name)
	return name, nil
}
