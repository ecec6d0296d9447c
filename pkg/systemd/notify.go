// Package systemd reports service state to systemd (Type=notify units).
// Outside systemd every call is a no-op.
package systemd

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends sd_notify messages. The zero value uses the real socket.
type Notifier struct {
	// send is swapped in tests.
	send func(unsetEnv bool, state string) (bool, error)
}

func (n Notifier) notify(state string) (bool, error) {
	if n.send != nil {
		return n.send(false, state)
	}
	return daemon.SdNotify(false, state)
}

// Ready reports READY=1. sent is false when NOTIFY_SOCKET is unset.
func (n Notifier) Ready() (sent bool, err error) { return n.notify(daemon.SdNotifyReady) }

func (n Notifier) Stopping() (bool, error) { return n.notify(daemon.SdNotifyStopping) }

// Status sets the free-form status line shown by systemctl status.
func (n Notifier) Status(format string, args ...any) (bool, error) {
	return n.notify("STATUS=" + fmt.Sprintf(format, args...))
}

// Watchdog pings WATCHDOG=1 at half the unit's WatchdogSec until ctx is
// done. It returns at once when the watchdog is not enabled.
func (n Notifier) Watchdog(ctx context.Context, healthy func() bool) error {
	every, err := daemon.SdWatchdogEnabled(false)
	if err != nil || every <= 0 {
		return err
	}
	return n.watchdogEvery(ctx, every/2, healthy)
}

func (n Notifier) watchdogEvery(ctx context.Context, interval time.Duration, healthy func() bool) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if healthy != nil && !healthy() {
				continue
			}
			if _, err := n.notify(daemon.SdNotifyWatchdog); err != nil {
				return err
			}
		}
	}
}
