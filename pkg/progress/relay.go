package progress

import (
	"regexp"
	"strconv"
	"sync"

	"mediapull/pkg/logger"
)

var relayLog = logger.Get("Progress")

// Phase names the stage of a download an Event belongs to. Every phase runs
// its own 0-100 scale: one download phase per fetched track, then an optional
// merge phase.
type Phase string

const (
	PhaseDownload Phase = "download"
	PhaseMerge    Phase = "merge"
)

// Event is a single progress update pushed to clients.
type Event struct {
	Phase   Phase  `json:"phase"`
	Percent int    `json:"percent"`
	Done    bool   `json:"done,omitempty"`
	Error   string `json:"error,omitempty"`
}

var percentPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)%`)

// Relay converts raw tool output into Events. It never blocks the caller and
// all methods are safe on a nil *Relay, which simply discards everything.
type Relay struct {
	mu       sync.Mutex
	publish  func(Event)
	phase    Phase
	last     int
	finished bool
}

func NewRelay(publish func(Event)) *Relay {
	return &Relay{publish: publish, phase: PhaseDownload, last: -1}
}

// Begin starts a new phase, resetting the monotonic floor.
func (r *Relay) Begin(phase Phase) {
	if r == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}

	r.phase = phase
	r.last = 0
	r.emit(Event{Phase: phase, Percent: 0})
}

// Feed scans a chunk of tool output for a percentage. The last match in the
// chunk wins. Reports whether a percentage was found.
func (r *Relay) Feed(chunk string) bool {
	matches := percentPattern.FindAllStringSubmatch(chunk, -1)
	if len(matches) == 0 {
		return false
	}

	value, err := strconv.ParseFloat(matches[len(matches)-1][1], 64)
	if err != nil {
		return false
	}

	r.Observe(int(value))
	return true
}

// Observe records percent for the current phase. Values are clamped to
// [0,100]; anything not above the last relayed value is dropped.
func (r *Relay) Observe(percent int) {
	if r == nil {
		return
	}

	if percent < 0 {
		percent = 0
	} else if percent > 100 {
		percent = 100
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished || percent <= r.last {
		return
	}

	r.last = percent
	r.emit(Event{Phase: r.phase, Percent: percent})
}

// Finish publishes the terminal event. message is empty on success and must
// be safe to show to clients otherwise. Only the first call has any effect.
func (r *Relay) Finish(message string) {
	if r == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	r.finished = true

	ev := Event{Phase: r.phase, Percent: r.last, Done: true, Error: message}
	if message == "" {
		ev.Percent = 100
	} else if ev.Percent < 0 {
		ev.Percent = 0
	}
	r.emit(ev)
}

// Current returns the phase and last relayed percentage (-1 before any).
func (r *Relay) Current() (Phase, int) {
	if r == nil {
		return PhaseDownload, -1
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase, r.last
}

func (r *Relay) emit(ev Event) {
	if r.publish == nil {
		return
	}

	// A failing subscriber must never take the download down with it.
	defer func() {
		if rec := recover(); rec != nil {
			relayLog.Emit(logger.WARNING, "Progress subscriber panicked on %s %d%%: %v\n", ev.Phase, ev.Percent, rec)
		}
	}()
	r.publish(ev)
}
