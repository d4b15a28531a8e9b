// Package transform keeps the per-camera, per-object matrix cache the visibility kernels read.
package transform

import (
	"context"
	_ "embed"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Carmen-Shannon/oxy-cull/common"
	"github.com/Carmen-Shannon/oxy-cull/engine/camera"
	"github.com/Carmen-Shannon/oxy-cull/engine/compute"
	"github.com/Carmen-Shannon/oxy-cull/engine/game_object"
)

// GPUTransformUpdateSource is the WGSL transform update kernel.
//
//go:embed assets/transform_update.wgsl
var GPUTransformUpdateSource string

// GPUObjectTransformSource declares the ObjectTransform struct the update kernel writes and the
// triangle kernel reads.
//
//go:embed assets/object_transform.wgsl
var GPUObjectTransformSource string

const (
	// WorkgroupSize is the workgroup size of the update kernel.
	WorkgroupSize = 256
	// GPUObjectTransformSize is the byte size of one marshalled ObjectTransform.
	GPUObjectTransformSize = 128
)

// ObjectTransform is the cached pair of matrices of one object for one camera.
type ObjectTransform struct {
	ModelView           [16]float32
	ModelViewProjection [16]float32
}

// Size returns the size of the marshalled ObjectTransform in bytes.
func (t *ObjectTransform) Size() int {
	return GPUObjectTransformSize
}

// Marshal serializes both matrices, column-major.
//
// Returns:
//   - []byte: 128-byte buffer ready for GPU upload.
func (t *ObjectTransform) Marshal() []byte {
	buf := make([]byte, GPUObjectTransformSize)
	for i := range 16 {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(t.ModelView[i]))
		binary.LittleEndian.PutUint32(buf[64+i*4:], math.Float32bits(t.ModelViewProjection[i]))
	}
	return buf
}

// Cache holds one ObjectTransform per object table entry. Entries of disabled objects are left as
// they were.
type Cache struct {
	transforms []ObjectTransform
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	return len(c.transforms)
}

// At returns the entry of an object.
func (c *Cache) At(id uint32) *ObjectTransform {
	return &c.transforms[id]
}

// Update recomputes MV = View*World and MVP = ViewProj*World for every enabled object, one
// invocation per object.
//
// Parameters:
//   - ctx: cancels the dispatch
//   - dev: the compute device
//   - cam: the camera constants of this frame
//   - objects: the object table
//
// Returns:
//   - error: a wrapped compute error
func (c *Cache) Update(ctx context.Context, dev compute.Device, cam *camera.GPUPerCameraUniform, objects []game_object.Object) error {
	if cap(c.transforms) < len(objects) {
		grown := make([]ObjectTransform, len(objects))
		copy(grown, c.transforms)
		c.transforms = grown
	}
	c.transforms = c.transforms[:len(objects)]

	n := uint32(len(objects))
	err := dev.Dispatch(ctx, compute.DispatchDesc{
		Label:     "transform.update",
		Groups:    common.DivCeil(n, WorkgroupSize),
		GroupSize: WorkgroupSize,
	}, func(inv *compute.Invocation) {
		id := inv.GlobalID
		if id >= n || !objects[id].Enabled {
			return
		}
		t := &c.transforms[id]
		common.Mul4(t.ModelView[:], cam.View[:], objects[id].World[:])
		common.Mul4(t.ModelViewProjection[:], cam.ViewProj[:], objects[id].World[:])
	})
	if err != nil {
		return fmt.Errorf("transform update: %w", err)
	}
	return nil
}

// Marshal serializes the whole cache for upload.
//
// Returns:
//   - []byte: Len()*128 bytes
func (c *Cache) Marshal() []byte {
	buf := make([]byte, 0, len(c.transforms)*GPUObjectTransformSize)
	for i := range c.transforms {
		buf = append(buf, c.transforms[i].Marshal()...)
	}
	return buf
}

// Load replaces the cache with marshalled entries, e.g. read back from the device.
//
// Parameters:
//   - buf: n*128 bytes; a trailing partial entry is ignored
func (c *Cache) Load(buf []byte) {
	n := len(buf) / GPUObjectTransformSize
	if cap(c.transforms) < n {
		c.transforms = make([]ObjectTransform, n)
	}
	c.transforms = c.transforms[:n]
	for i := range c.transforms {
		b := buf[i*GPUObjectTransformSize:]
		t := &c.transforms[i]
		for k := range 16 {
			t.ModelView[k] = math.Float32frombits(binary.LittleEndian.Uint32(b[k*4:]))
			t.ModelViewProjection[k] = math.Float32frombits(binary.LittleEndian.Uint32(b[64+k*4:]))
		}
	}
}
