//go:build cgo

package engine

// file: internal/engine/midi_cgo.go

import (
	"github.com/cockroachdb/errors"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// MIDIInputs lists the MIDI input ports offered in engine setup.
func MIDIInputs() ([]string, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, errors.Wrap(err, "cannot open MIDI driver")
	}
	defer drv.Close()

	ins, err := drv.Ins()
	if err != nil {
		return nil, errors.Wrap(err, "cannot list MIDI inputs")
	}
	names := make([]string, 0, len(ins))
	for _, in := range ins {
		names = append(names, in.String())
	}
	return names, nil
}
