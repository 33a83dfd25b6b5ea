// Package systemd reports daemon lifecycle to the service manager over the
// sd_notify protocol. Outside systemd every call is a no-op.
package systemd

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends state updates and watchdog pings.
type Notifier struct {
	log *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewNotifier returns a notifier that logs failures to log.
func NewNotifier(log *slog.Logger) *Notifier {
	return &Notifier{log: log}
}

func (n *Notifier) send(state string) bool {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		n.log.Warn("Failed to notify systemd", "state", state, "error", err)
	}
	return sent
}

// Ready reports that start-up is complete.
func (n *Notifier) Ready() bool {
	return n.send(daemon.SdNotifyReady)
}

// Stopping reports that shutdown has begun and stops the watchdog.
func (n *Notifier) Stopping() bool {
	n.StopWatchdog()
	return n.send(daemon.SdNotifyStopping)
}

// Reloading reports a configuration reload.
func (n *Notifier) Reloading() bool {
	return n.send(daemon.SdNotifyReloading)
}

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(format string, args ...any) bool {
	return n.send("STATUS=" + fmt.Sprintf(format, args...))
}

// StartWatchdog pings the watchdog at half the interval the unit asks for.
// healthy is consulted before every ping; a false result skips it so the
// service manager restarts a wedged daemon. Returns false when the unit has
// no watchdog.
func (n *Notifier) StartWatchdog(ctx context.Context, healthy func() bool) bool {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		n.log.Warn("Invalid watchdog configuration", "error", err)
		return false
	}
	if interval <= 0 {
		return false
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cancel != nil {
		return true
	}
	ctx, n.cancel = context.WithCancel(ctx)
	n.done = make(chan struct{})
	go n.watchdog(ctx, interval/2, healthy, n.done)
	n.log.Info("Systemd watchdog enabled", "interval", interval)
	return true
}

func (n *Notifier) watchdog(ctx context.Context, every time.Duration, healthy func() bool, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if healthy != nil && !healthy() {
				n.log.Warn("Skipping watchdog ping, daemon unhealthy")
				continue
			}
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}

// StopWatchdog stops pinging and waits for the pinger to exit.
func (n *Notifier) StopWatchdog() {
	n.mu.Lock()
	cancel, done := n.cancel, n.done
	n.cancel, n.done = nil, nil
	n.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}
