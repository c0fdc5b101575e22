package engine

import (
	"mmiosim/interfaces"
	"sync/atomic"
)

// childViewModel is implemented by every view model below the root.
type childViewModel interface {
	interfaces.Updateable
	interfaces.Dirtyable

	// Owns reports whether addr belongs to the device this view model presents.
	Owns(addr uint32) bool
	// RegisterChanged applies a sampled register value.
	RegisterChanged(addr uint32, value uint32)
}

// dirty is embedded by view models for the Dirtyable bookkeeping.
type dirty struct {
	isDirty atomic.Bool
}

func (d *dirty) IsDirty() bool { return d.isDirty.Load() }
func (d *dirty) ClearDirty()   { d.isDirty.Store(false) }
func (d *dirty) MarkDirty()    { d.isDirty.Store(true) }
