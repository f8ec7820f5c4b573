//go:build !cgo

package engine

// file: internal/engine/midi_nocgo.go

// MIDIInputs reports no ports: without cgo there is no MIDI driver.
func MIDIInputs() ([]string, error) {
	return nil, nil
}
