package telemetry

import (
	"math"
	"sync"
	"time"

	"github.com/loanpilot/sentinel/internal/domain"
)

// EventKind identifies a raw interaction event.
type EventKind string

const (
	EventClick       EventKind = "click"
	EventKeypress    EventKind = "keypress"
	EventPointerMove EventKind = "pointermove"
	EventScroll      EventKind = "scroll"
)

// InteractionEvent is one observed raw event. At may be zero, in which case
// the collector stamps it with its own clock. X/Y are only meaningful for
// pointermove.
type InteractionEvent struct {
	Kind EventKind `json:"kind"`
	X    float64   `json:"x,omitempty"`
	Y    float64   `json:"y,omitempty"`
	At   time.Time `json:"at,omitempty"`
}

// Buffer capacities and the pointer-move throttle gap.
const (
	clickBufferCap  = 10
	keyBufferCap    = 20
	mouseBufferCap  = 50
	moveThrottleGap = time.Second
)

type point struct {
	x, y float64
}

// Collector reduces a session's raw interaction events into rolling bounded
// buffers and derives behavior snapshots from them. All methods are safe for
// concurrent use; event handlers and the periodic snapshot timer share it.
type Collector struct {
	mu          sync.Mutex
	now         func() time.Time
	startedAt   time.Time
	loginHour   int
	fingerprint string

	clickTimes []time.Time
	keyTimes   []time.Time
	moves      []point
	lastMove   time.Time
}

// NewCollector creates a collector for one session. The device fingerprint is
// fixed for the session's lifetime. A nil clock defaults to time.Now.
func NewCollector(fingerprint string, clock func() time.Time) *Collector {
	if clock == nil {
		clock = time.Now
	}
	start := clock()
	return &Collector{
		now:         clock,
		startedAt:   start,
		loginHour:   start.Hour(),
		fingerprint: fingerprint,
		clickTimes:  make([]time.Time, 0, clickBufferCap),
		keyTimes:    make([]time.Time, 0, keyBufferCap),
		moves:       make([]point, 0, mouseBufferCap),
	}
}

// Observe records one raw event. Clicks and keypresses append to bounded
// FIFO timestamp buffers; pointer moves append positions but are throttled to
// one sample per second to bound cost and noise. Scroll events carry no
// derived metric and are accepted as no-ops. Unknown kinds are ignored.
func (c *Collector) Observe(ev InteractionEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	at := ev.At
	if at.IsZero() {
		at = c.now()
	}

	switch ev.Kind {
	case EventClick:
		c.clickTimes = appendBounded(c.clickTimes, at, clickBufferCap)
	case EventKeypress:
		c.keyTimes = appendBounded(c.keyTimes, at, keyBufferCap)
	case EventPointerMove:
		if !c.lastMove.IsZero() && at.Sub(c.lastMove) < moveThrottleGap {
			return
		}
		c.lastMove = at
		if len(c.moves) == mouseBufferCap {
			copy(c.moves, c.moves[1:])
			c.moves = c.moves[:mouseBufferCap-1]
		}
		c.moves = append(c.moves, point{x: ev.X, y: ev.Y})
	case EventScroll:
	}
}

// Snapshot derives the current behavior summary from the buffers. It performs
// no I/O and does not mutate the buffers.
func (c *Collector) Snapshot() domain.SessionBehaviorSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return domain.SessionBehaviorSnapshot{
		LoginHour:              c.loginHour,
		SessionDurationMinutes: c.now().Sub(c.startedAt).Minutes(),
		ClickIntervals:         intervalsMs(c.clickTimes),
		KeyIntervals:           intervalsMs(c.keyTimes),
		MouseMovementVariance:  movementVariance(c.moves),
		DeviceFingerprint:      c.fingerprint,
	}
}

// Fingerprint returns the session's device fingerprint.
func (c *Collector) Fingerprint() string {
	return c.fingerprint
}

func appendBounded(buf []time.Time, t time.Time, cap int) []time.Time {
	if len(buf) == cap {
		copy(buf, buf[1:])
		buf = buf[:cap-1]
	}
	return append(buf, t)
}

// intervalsMs returns the successive differences of the timestamp buffer in
// milliseconds; n timestamps yield n-1 intervals.
func intervalsMs(times []time.Time) []float64 {
	if len(times) < 2 {
		return []float64{}
	}
	out := make([]float64, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		out = append(out, float64(times[i].Sub(times[i-1]).Microseconds())/1000.0)
	}
	return out
}

// movementVariance is the mean Euclidean distance between consecutive sampled
// pointer positions. Fewer than two samples yields zero.
func movementVariance(pts []point) float64 {
	if len(pts) < 2 {
		return 0
	}
	total := 0.0
	for i := 1; i < len(pts); i++ {
		dx := pts[i].x - pts[i-1].x
		dy := pts[i].y - pts[i-1].y
		total += math.Sqrt(dx*dx + dy*dy)
	}
	return total / float64(len(pts)-1)
}
