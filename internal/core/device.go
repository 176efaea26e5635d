// Device: a Node that is also a Service and a Channel container. Built by
// composition — a capability set over inheritance, favoring embedding over
// deep hierarchies — rather than a Node/Service base class.

package sihd_core

import (
	"fmt"
	"sync"

	sihd_util "github.com/mdufaud/sihd-sub000/internal/util"
)

var deviceLog = sihd_util.NewCompLogger("device")

// DeviceHooks are the subclass-overridable lifecycle callbacks a concrete
// device (DevFilter, or any future kind) plugs in. Each is optional.
type DeviceHooks struct {
	OnSetup func(d *Device) error
	OnInit  func(d *Device) error
	OnStart func(d *Device) error
	OnStop  func(d *Device) error
	OnReset func(d *Device) error
}

// Device composes a Node (tree participation), a Service (lifecycle state
// machine) and a Channel container into the unit DevFilter and future
// device kinds build on.
type Device struct {
	*sihd_util.Node
	*sihd_util.BaseService

	mu       sync.RWMutex
	channels map[string]*Channel
	clock    sihd_util.Clock
}

func NewDevice(name string, clock sihd_util.Clock, hooks DeviceHooks) *Device {
	d := &Device{channels: make(map[string]*Channel), clock: clock}
	d.Node = sihd_util.NewNode(name, d)
	d.BaseService = sihd_util.NewBaseService(name, sihd_util.Hooks{
		OnSetup: func() error { return d.runHook(hooks.OnSetup) },
		OnInit:  func() error { return d.runHook(hooks.OnInit) },
		OnStart: func() error { return d.runHook(hooks.OnStart) },
		OnStop:  func() error { return d.runHook(hooks.OnStop) },
		OnReset: func() error { return d.runHook(hooks.OnReset) },
	})
	return d
}

func (d *Device) runHook(h func(d *Device) error) error {
	if h == nil {
		return nil
	}
	return h(d)
}

func (d *Device) Clock() sihd_util.Clock { return d.clock }

// AddChannel creates an owned Channel child of the given type and size.
func (d *Device) AddChannel(name string, elemType sihd_util.Type, size int) (*Channel, error) {
	ch, err := NewChannel(name, d.clock, elemType, size)
	if err != nil {
		return nil, err
	}
	if err := d.Node.AddChild(name, ch); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.channels[name] = ch
	d.mu.Unlock()
	deviceLog.Debugf("device %q: added channel %q (%s[%d])", d.Name(), name, elemType, size)
	return ch, nil
}

// FindChannel walks the subtree (following symbolic links) looking for a
// channel at path; it is not restricted to this device's own direct
// children, mirroring Node.Find's tree-wide resolution.
func (d *Device) FindChannel(path string) (*Channel, error) {
	named, err := d.Node.Find(path)
	if err != nil {
		return nil, err
	}
	ch, ok := named.(*Channel)
	if !ok {
		return nil, fmt.Errorf("sihd_core: %q is not a channel", path)
	}
	return ch, nil
}

// Channels returns the device's own direct channel children, in no
// particular order.
func (d *Device) Channels() []*Channel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Channel, 0, len(d.channels))
	for _, ch := range d.channels {
		out = append(out, ch)
	}
	return out
}

// AddDevice attaches a subordinate Device (e.g. DevFilter's child
// Scheduler surfaced as a node, or any device nested for composition).
func (d *Device) AddDevice(name string, child sihd_util.Named) error {
	return d.Node.AddChild(name, child)
}
