package device

import (
	"context"
	"time"
)

// Committed returns a channel closed by the next commit or by Close. Take it
// before inspecting state to avoid missing a commit in between.
func (d *Device) Committed() <-chan struct{} {
	d.nmu.Lock()
	defer d.nmu.Unlock()
	return d.notifyCh
}

// WaitForCommit blocks until a record is committed, the device closes or
// timeout elapses. It returns false on timeout. A non-positive timeout waits
// indefinitely.
func (d *Device) WaitForCommit(timeout time.Duration) bool {
	ch := d.Committed()
	if timeout <= 0 {
		<-ch
		return true
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ch:
		return true
	case <-t.C:
		return false
	}
}

// Wait is WaitForCommit bounded by ctx.
func (d *Device) Wait(ctx context.Context) error {
	select {
	case <-d.Committed():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
