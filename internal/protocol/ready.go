package protocol

import "sync"

// ReadyMarker is written once by the hub program after its actuators are
// bound and its loop is entered. It is two raw bytes with no terminator.
var ReadyMarker = []byte{'R', 'Y'}

// ReadyDetector watches an inbound byte stream for ReadyMarker, tolerating
// the marker being split across notifications. Safe for concurrent use.
type ReadyDetector struct {
	mu      sync.Mutex
	matched int
	seen    bool
	ready   chan struct{}
}

func NewReadyDetector() *ReadyDetector {
	return &ReadyDetector{ready: make(chan struct{})}
}

// Feed scans one notification payload.
func (d *ReadyDetector) Feed(payload []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen {
		return
	}

	for _, b := range payload {
		switch {
		case b == ReadyMarker[d.matched]:
			d.matched++
		case b == ReadyMarker[0]:
			d.matched = 1
		default:
			d.matched = 0
		}
		if d.matched == len(ReadyMarker) {
			d.seen = true
			close(d.ready)
			return
		}
	}
}

// Ready is closed once the marker has been seen.
func (d *ReadyDetector) Ready() <-chan struct{} {
	return d.ready
}
