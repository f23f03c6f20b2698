package protocol

// MaxFrameLen bounds the bytes buffered for one frame body.
const MaxFrameLen = 64

// Framer accumulates bytes one at a time and yields complete frame bodies.
// It is not safe for concurrent use; each reader owns its own Framer.
type Framer struct {
	buf      []byte
	overflow bool
}

// Feed consumes one byte. It returns the buffered body and true when b is the
// terminator. CR and LF are dropped. A body longer than MaxFrameLen is
// discarded up to and including the next terminator.
func (f *Framer) Feed(b byte) (string, bool) {
	switch b {
	case '\n', '\r':
		return "", false
	case Terminator:
		if f.overflow {
			f.Reset()
			return "", false
		}
		frame := string(f.buf)
		f.buf = f.buf[:0]
		return frame, true
	}

	if f.overflow {
		return "", false
	}
	if len(f.buf) >= MaxFrameLen {
		f.overflow = true
		f.buf = f.buf[:0]
		return "", false
	}
	f.buf = append(f.buf, b)
	return "", false
}

// Pending reports how many bytes are buffered for the current frame.
func (f *Framer) Pending() int {
	return len(f.buf)
}

// Reset drops any partial frame.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
	f.overflow = false
}

// Split frames a whole payload, returning every complete body in order and
// leaving any unterminated tail buffered.
func (f *Framer) Split(payload []byte) []string {
	var frames []string
	for _, b := range payload {
		if frame, ok := f.Feed(b); ok {
			frames = append(frames, frame)
		}
	}
	return frames
}
