// Array: an owned, typed, fixed-size contiguous buffer. The Go analogue of
// the original's ICloneable<Array<T>> — a runtime type tag plus a byte
// buffer it owns outright, as opposed to the borrowed ArrayView
// (arrayview.go).

package sihd_util

import (
	"fmt"

	"github.com/docker/go-units"
	"github.com/huandu/go-clone"
)

// Array owns its backing buffer. Element count and type are fixed at
// construction and never change afterwards.
type Array struct {
	elemType Type
	count    int
	buf      []byte
}

func NewArray(t Type, count int) (*Array, error) {
	size := t.ElemSize()
	if size == 0 {
		return nil, fmt.Errorf("sihd_util: unknown element type %v", t)
	}
	if count < 0 {
		return nil, fmt.Errorf("sihd_util: negative element count %d", count)
	}
	return &Array{elemType: t, count: count, buf: make([]byte, count*size)}, nil
}

// NewArrayFromBytes builds an Array of type t from a copy of buf; the
// element count is len(buf) divided by the element size.
func NewArrayFromBytes(t Type, buf []byte) (*Array, error) {
	size := t.ElemSize()
	if size == 0 {
		return nil, fmt.Errorf("sihd_util: unknown element type %v", t)
	}
	if len(buf)%size != 0 {
		return nil, fmt.Errorf("sihd_util: buffer length %d not a multiple of element size %d", len(buf), size)
	}
	owned := make([]byte, len(buf))
	copy(owned, buf)
	return &Array{elemType: t, count: len(buf) / size, buf: owned}, nil
}

// ParseByteSize parses human-readable byte sizes like "4k", "64KiB" the way
// elsewhere to parse byte-size config fields.
func ParseByteSize(spec string) (int64, error) {
	return units.RAMInBytes(spec)
}

func (a *Array) Type() Type    { return a.elemType }
func (a *Array) Len() int      { return a.count }
func (a *Array) Bytes() []byte { return a.buf }

func (a *Array) At(index int) (Value, error) {
	return a.View().At(index)
}

func (a *Array) Set(index int, val Value) error {
	return a.View().Set(index, val)
}

// View returns a borrowed ArrayView over the Array's full range.
func (a *Array) View() *ArrayView {
	return &ArrayView{elemType: a.elemType, elemSize: a.elemType.ElemSize(), buf: a.buf}
}

// Clone returns an owned deep copy, using the same deep-clone library
// (huandu/go-clone) exactly as config_test.go uses it to snapshot config
// structs before mutating them in-place.
func (a *Array) Clone() *Array {
	return clone.Clone(a).(*Array)
}

// CopyFrom overwrites the Array's contents from a view of the same type and
// length; used by Channel.CopyTo's counterpart when draining a snapshot.
func (a *Array) CopyFrom(src *ArrayView) error {
	if src.Type() != a.elemType || src.Len() != a.count {
		return fmt.Errorf(
			"sihd_util: type/length mismatch: dst %v[%d], src %v[%d]",
			a.elemType, a.count, src.Type(), src.Len(),
		)
	}
	copy(a.buf, src.Bytes())
	return nil
}
