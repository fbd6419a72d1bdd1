package notifications

import (
	"fmt"
	"time"

	"github.com/napoleonai/inbox/internal/models"
)

// Channel identifies one delivery channel. The decision algorithm runs
// per channel: a notification can be shown in-app but suppressed from
// push, or vice versa.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelPush  Channel = "push"
)

// Dispatcher decides, per incoming notification and channel, whether
// delivery should fire. The clock is injectable for tests; zero value
// uses time.Now.
type Dispatcher struct {
	Now func() time.Time
}

// NewDispatcher creates a Dispatcher using the wall clock.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{Now: time.Now}
}

// ShouldDeliver applies the delivery decision algorithm:
//  1. channel preference disabled -> suppress
//  2. quiet hours active -> suppress (no priority overrides this,
//     urgent included)
//  3. vipOnly enabled and notification type is not "vip" -> suppress
//  4. otherwise -> deliver
func (d *Dispatcher) ShouldDeliver(prefs Preferences, n models.Notification, ch Channel, loc *time.Location) bool {
	switch ch {
	case ChannelInApp:
		if !prefs.InApp {
			return false
		}
	case ChannelPush:
		if !prefs.Push {
			return false
		}
	default:
		return false
	}

	now := time.Now()
	if d.Now != nil {
		now = d.Now()
	}
	if loc != nil {
		now = now.In(loc)
	}
	if IsQuietHours(prefs.QuietHours, now) {
		return false
	}

	if prefs.VipOnly && n.Type != models.NotificationTypeVip {
		return false
	}

	return true
}

// IsQuietHours reports whether now falls inside the configured
// [start, end) window. Comparison is in minutes since local midnight.
// When start > end the window spans midnight: in window if
// now >= start OR now < end.
func IsQuietHours(qh QuietHours, now time.Time) bool {
	if !qh.Enabled {
		return false
	}

	start, err := parseClock(qh.Start)
	if err != nil {
		return false
	}
	end, err := parseClock(qh.End)
	if err != nil {
		return false
	}

	minutes := now.Hour()*60 + now.Minute()

	if start > end {
		// Overnight span, e.g. 22:00-08:00
		return minutes >= start || minutes < end
	}
	return minutes >= start && minutes < end
}

// parseClock parses an "HH:MM" wall-clock string into minutes since
// midnight.
func parseClock(s string) (int, error) {
	var hh, mm int
	if _, err := fmt.Sscanf(s, "%d:%d", &hh, &mm); err != nil {
		return 0, fmt.Errorf("invalid clock string %q: %w", s, err)
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("clock string out of range: %q", s)
	}
	return hh*60 + mm, nil
}
