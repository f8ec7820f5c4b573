//go:build !cgo

package engine

// file: internal/engine/system_nocgo.go

import "context"

// SystemName is the name of the hardware output backend.
const SystemName = "system"

// SystemBackend needs cgo for device access; without it the backend is
// registered but never available.
type SystemBackend struct{}

// NewSystemBackend returns the hardware output backend.
func NewSystemBackend() *SystemBackend { return &SystemBackend{} }

// Name implements Backend.
func (SystemBackend) Name() string { return SystemName }

// Available implements Backend.
func (SystemBackend) Available() bool { return false }

// Open always fails in builds without cgo.
func (SystemBackend) Open(context.Context, Params) (Stream, error) {
	return nil, ErrBackendUnavailable
}
