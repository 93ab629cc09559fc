package admission

import (
	"time"

	"github.com/kirillkom/meta-search/internal/core/domain"
)

// RateLimits of zero disable the corresponding check.
type RateLimits struct {
	PerMinute   int
	PerHour     int
	PerDay      int
	Concurrency int
	Cooldown    time.Duration
}

type windowSlot struct {
	start time.Time
	count int
}

// slidingWindow counts events over a rolling span using fixed sub-slots.
// Slots roll over lazily as time advances.
type slidingWindow struct {
	span  time.Duration
	slots []windowSlot
}

func newSlidingWindow(span time.Duration, slotCount int) *slidingWindow {
	if slotCount <= 0 {
		slotCount = 1
	}
	return &slidingWindow{span: span, slots: make([]windowSlot, slotCount)}
}

func (w *slidingWindow) slotSpan() time.Duration {
	return w.span / time.Duration(len(w.slots))
}

func (w *slidingWindow) add(now time.Time) {
	span := w.slotSpan()
	start := now.Truncate(span)
	idx := int((start.UnixNano() / int64(span)) % int64(len(w.slots)))
	if idx < 0 {
		idx += len(w.slots)
	}
	if !w.slots[idx].start.Equal(start) {
		w.slots[idx] = windowSlot{start: start}
	}
	w.slots[idx].count++
}

func (w *slidingWindow) count(now time.Time) int {
	cutoff := now.Add(-w.span)
	total := 0
	for _, s := range w.slots {
		if s.start.After(cutoff) && !s.start.After(now) {
			total += s.count
		}
	}
	return total
}

// retryAfter estimates how long until the oldest in-window slot expires.
func (w *slidingWindow) retryAfter(now time.Time) time.Duration {
	cutoff := now.Add(-w.span)
	var oldest time.Time
	for _, s := range w.slots {
		if s.count == 0 || !s.start.After(cutoff) || s.start.After(now) {
			continue
		}
		if oldest.IsZero() || s.start.Before(oldest) {
			oldest = s.start
		}
	}
	if oldest.IsZero() {
		return w.slotSpan()
	}
	d := oldest.Add(w.span + w.slotSpan()).Sub(now)
	if d < w.slotSpan() {
		d = w.slotSpan()
	}
	return d
}

// rateGate guards one provider. Callers hold the provider lock.
type rateGate struct {
	limits RateLimits

	minute *slidingWindow
	hour   *slidingWindow
	day    *slidingWindow

	inFlight      int
	cooldownUntil time.Time
}

func newRateGate(limits RateLimits) *rateGate {
	return &rateGate{
		limits: limits,
		minute: newSlidingWindow(time.Minute, 60),
		hour:   newSlidingWindow(time.Hour, 60),
		day:    newSlidingWindow(24*time.Hour, 24),
	}
}

// check reports whether a dispatch may proceed without recording anything.
// A full window starts the cooldown; requests during cooldown are rejected
// before touching the windows.
func (g *rateGate) check(now time.Time) (time.Duration, bool) {
	if now.Before(g.cooldownUntil) {
		return g.cooldownUntil.Sub(now), false
	}
	if g.limits.Concurrency > 0 && g.inFlight >= g.limits.Concurrency {
		return time.Second, false
	}
	if retry, ok := g.checkWindow(g.minute, g.limits.PerMinute, now); !ok {
		return retry, false
	}
	if retry, ok := g.checkWindow(g.hour, g.limits.PerHour, now); !ok {
		return retry, false
	}
	if retry, ok := g.checkWindow(g.day, g.limits.PerDay, now); !ok {
		return retry, false
	}
	return 0, true
}

func (g *rateGate) checkWindow(w *slidingWindow, limit int, now time.Time) (time.Duration, bool) {
	if limit <= 0 || w.count(now) < limit {
		return 0, true
	}
	g.enterCooldown(now)
	retry := w.retryAfter(now)
	if cooldown := g.cooldownUntil.Sub(now); cooldown > retry {
		retry = cooldown
	}
	return retry, false
}

// commit records one admitted dispatch on every window.
func (g *rateGate) commit(now time.Time) {
	g.minute.add(now)
	g.hour.add(now)
	g.day.add(now)
	g.inFlight++
}

func (g *rateGate) release() {
	if g.inFlight > 0 {
		g.inFlight--
	}
}

func (g *rateGate) enterCooldown(now time.Time) {
	if g.limits.Cooldown <= 0 {
		return
	}
	until := now.Add(g.limits.Cooldown)
	if until.After(g.cooldownUntil) {
		g.cooldownUntil = until
	}
}

func (g *rateGate) usage(now time.Time) domain.WindowUsage {
	return domain.WindowUsage{
		Minute:   g.minute.count(now),
		Hour:     g.hour.count(now),
		Day:      g.day.count(now),
		InFlight: g.inFlight,
	}
}
