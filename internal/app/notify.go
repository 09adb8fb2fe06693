package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "batchsim/pkg/logx"
)

// notifier reports service state to the init system. Both calls are no-ops
// outside systemd (NOTIFY_SOCKET unset).
type notifier interface {
	Notify(state string) (bool, error)
	WatchdogInterval() (time.Duration, error)
}

type sdNotifier struct{}

func (sdNotifier) Notify(state string) (bool, error) { return daemon.SdNotify(false, state) }

func (sdNotifier) WatchdogInterval() (time.Duration, error) { return daemon.SdWatchdogEnabled(false) }

func (a *App) notify(state string) {
	sent, err := a.sd.Notify(state)
	if err != nil {
		a.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		a.log.Debug("sd_notify sent", logx.String("state", state))
	}
}

// watchdog pings at half the configured interval until ctx ends. It
// returns at once when the unit has no WatchdogSec.
func (a *App) watchdog(ctx context.Context) {
	interval, err := a.sd.WatchdogInterval()
	if err != nil {
		a.log.Warn("sd watchdog config invalid", logx.Err(err))
		return
	}
	if interval <= 0 {
		return
	}
	period := interval / 2
	a.log.Info("sd watchdog enabled", logx.Duration("interval", interval))
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.notify(daemon.SdNotifyWatchdog)
		}
	}
}
