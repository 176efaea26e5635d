// Channel: a typed fixed-size buffer with a timestamp and an observer
// list. Grounded on sihd_util.Array for storage and sihd_util.Node for
// tree participation; the observer list follows sihd_util.Waitable's
// mutex-guarded shape and the versioned-list strategy for safe
// add/remove-during-notification.

package sihd_core

import (
	"bytes"
	"fmt"
	"sync"

	sihd_util "github.com/mdufaud/sihd-sub000/internal/util"
)

var channelLog = sihd_util.NewCompLogger("channel")

// Handler is the observer capability a Channel notifies synchronously on
// every write, on the writer's own goroutine.
type Handler interface {
	Handle(c *Channel)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(c *Channel)

func (f HandlerFunc) Handle(c *Channel) { f(c) }

type observerEntry struct {
	handler Handler
	removed bool
}

// Channel owns an Array and exposes it as a named tree participant.
type Channel struct {
	*sihd_util.Node

	mu            sync.Mutex
	array         *sihd_util.Array
	timestamp     sihd_util.Timestamp
	clock         sihd_util.Clock
	writeOnChange bool

	observers   []*observerEntry
	notifying   bool
	deferredAdd []Handler
	deferredDel []Handler
}

func NewChannel(name string, clock sihd_util.Clock, elemType sihd_util.Type, size int) (*Channel, error) {
	arr, err := sihd_util.NewArray(elemType, size)
	if err != nil {
		return nil, err
	}
	c := &Channel{array: arr, clock: clock}
	c.Node = sihd_util.NewNode(name, c)
	return c, nil
}

func (c *Channel) SetWriteOnChange(b bool) { c.mu.Lock(); c.writeOnChange = b; c.mu.Unlock() }

func (c *Channel) Type() sihd_util.Type { return c.array.Type() }
func (c *Channel) Len() int             { return c.array.Len() }

func (c *Channel) Timestamp() sihd_util.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timestamp
}

// Write replaces the channel's full contents from src, updates the
// timestamp, and notifies observers — unless write_on_change is set and
// the new bytes equal the current ones, in which case nothing happens.
func (c *Channel) Write(src *sihd_util.ArrayView) error {
	c.mu.Lock()
	if src.Type() != c.array.Type() || src.Len() != c.array.Len() {
		c.mu.Unlock()
		return fmt.Errorf("sihd_core: channel %q: type/length mismatch on write", c.Name())
	}
	if c.writeOnChange && bytes.Equal(src.Bytes(), c.array.Bytes()) {
		c.mu.Unlock()
		return nil
	}
	if err := c.array.CopyFrom(src); err != nil {
		c.mu.Unlock()
		return err
	}
	c.timestamp = c.clock.Now()
	c.mu.Unlock()

	c.notify()
	return nil
}

// WriteBytes replaces a byte range starting at byteOffset; used when the
// caller hands over raw bytes rather than a pre-built ArrayView.
func (c *Channel) WriteBytes(raw []byte, byteOffset int) error {
	c.mu.Lock()
	buf := c.array.Bytes()
	if byteOffset < 0 || byteOffset+len(raw) > len(buf) {
		c.mu.Unlock()
		return fmt.Errorf("sihd_core: channel %q: byte range out of bounds", c.Name())
	}
	if c.writeOnChange && bytes.Equal(raw, buf[byteOffset:byteOffset+len(raw)]) {
		c.mu.Unlock()
		return nil
	}
	copy(buf[byteOffset:], raw)
	c.timestamp = c.clock.Now()
	c.mu.Unlock()

	c.notify()
	return nil
}

// WriteAt replaces a single element, coercing val to the channel's
// declared type first (a DevFilter rule's literal is parsed independent
// of any channel, so its Type may not match the destination's).
func (c *Channel) WriteAt(index int, val sihd_util.Value) error {
	c.mu.Lock()
	if index < 0 || index >= c.array.Len() {
		c.mu.Unlock()
		return fmt.Errorf("sihd_core: channel %q: index %d out of range", c.Name(), index)
	}
	coerced := sihd_util.CoerceValue(c.array.Type(), val)
	old, _ := c.array.At(index)
	if c.writeOnChange && old == coerced {
		c.mu.Unlock()
		return nil
	}
	if err := c.array.Set(index, coerced); err != nil {
		c.mu.Unlock()
		return err
	}
	c.timestamp = c.clock.Now()
	c.mu.Unlock()

	c.notify()
	return nil
}

// Read decodes the element at index.
func (c *Channel) Read(index int) (sihd_util.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.array.At(index)
}

// CopyTo deep-copies the channel's contents into dst.
func (c *Channel) CopyTo(dst *sihd_util.Array) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return dst.CopyFrom(c.array.View())
}

// Notify re-runs observer notification without changing contents.
func (c *Channel) Notify() { c.notify() }

// notify walks a snapshot of the observer list: observer invocation is
// synchronous on the writer's thread, but the channel lock is released
// before the observers run (so a Handle callback may read or write the
// channel), and any add/remove queued during the walk is applied only
// after the walk completes.
func (c *Channel) notify() {
	c.mu.Lock()
	if c.notifying {
		// Re-entrant notify (an observer wrote back into this channel from
		// inside its own Handle): just let the outer walk pick it up, since
		// array/timestamp were already updated before this call.
		c.mu.Unlock()
		return
	}
	c.notifying = true
	entries := c.observers
	c.mu.Unlock()

	for _, e := range entries {
		if e.removed {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					channelLog.Errorf("channel %q: observer panic: %v", c.Name(), r)
				}
			}()
			e.handler.Handle(c)
		}()
	}

	c.mu.Lock()
	c.notifying = false
	for _, h := range c.deferredAdd {
		c.observers = append(c.observers, &observerEntry{handler: h})
	}
	c.deferredAdd = nil
	for _, h := range c.deferredDel {
		c.removeObserverLocked(h)
	}
	c.deferredDel = nil
	c.mu.Unlock()
}

// AddObserver registers h; when called from within a Handle callback the
// addition is deferred until the current notification walk completes.
func (c *Channel) AddObserver(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notifying {
		c.deferredAdd = append(c.deferredAdd, h)
		return
	}
	c.observers = append(c.observers, &observerEntry{handler: h})
}

// RemoveObserver unregisters h; safe to call from outside notification.
func (c *Channel) RemoveObserver(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notifying {
		c.deferredDel = append(c.deferredDel, h)
		return
	}
	c.removeObserverLocked(h)
}

// RemoveObserverInsideNotification is the re-entrant-safe variant an
// observer calls on itself from within Handle; the removal is deferred
// until the current walk finishes, exactly like RemoveObserver does when
// notifying is already true.
func (c *Channel) RemoveObserverInsideNotification(h Handler) {
	c.RemoveObserver(h)
}

// removeObserverLocked identifies the observer by == , which means a
// Handler implementation must be comparable (a *Device, not a bare
// HandlerFunc closure) to be removable — the same constraint Go places on
// any map key or channel-registered callback.
func (c *Channel) removeObserverLocked(h Handler) {
	kept := c.observers[:0]
	for _, e := range c.observers {
		if e.handler != h {
			kept = append(kept, e)
		}
	}
	c.observers = kept
}
