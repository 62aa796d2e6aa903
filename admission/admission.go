// Package admission gates how many tasks may be active at once.
package admission

import "context"

// ActiveCounter is the slice of the registry the controller needs.
type ActiveCounter interface {
	CountActive(ctx context.Context) (int, error)
}

// Controller is a soft, advisory gate: callers re-check it rather than
// reserving a slot, so two callers can both see room and proceed, transiently
// exceeding the ceiling under race. Accepted trade-off; a strict reservation
// would need a real semaphore.
type Controller struct {
	store         ActiveCounter
	maxConcurrent int
}

func NewController(store ActiveCounter, maxConcurrent int) *Controller {
	return &Controller{store: store, maxConcurrent: maxConcurrent}
}

// CanAdmit reports whether a new, not-yet-recorded task may begin active
// processing now.
func (c *Controller) CanAdmit(ctx context.Context) (bool, error) {
	active, err := c.store.CountActive(ctx)
	if err != nil {
		return false, err
	}
	return active < c.maxConcurrent, nil
}

// CanProceed reports whether a task that already holds an active registry
// record may move into processing. The caller's own record is part of the
// count and must be discounted: a full complement of queued waiters would
// otherwise each count the others and starve.
func (c *Controller) CanProceed(ctx context.Context) (bool, error) {
	active, err := c.store.CountActive(ctx)
	if err != nil {
		return false, err
	}
	return active-1 < c.maxConcurrent, nil
}
