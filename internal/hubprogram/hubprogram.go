// Package hubprogram carries the MicroPython listener that runs on a Pybricks
// hub and speaks the same frames as internal/interpreter.
package hubprogram

import (
	_ "embed"
)

//go:embed listener.py
var listener []byte

// Listener returns the listener source. Load it with Pybricks Code, or
// compile it with mpy-cross and point ble.program_path at the result so each
// connect downloads it.
func Listener() []byte {
	return append([]byte(nil), listener...)
}
