package transform

import (
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-cull/common"
	"github.com/Carmen-Shannon/oxy-cull/engine/camera"
	"github.com/Carmen-Shannon/oxy-cull/engine/compute"
	"github.com/Carmen-Shannon/oxy-cull/engine/game_object"
)

func TestUpdateMatchesHostMultiply(t *testing.T) {
	dev := compute.NewDevice(compute.WithWorkers(2))
	t.Cleanup(dev.Close)

	cam := camera.NewCamera(
		camera.WithResolution(640, 480),
		camera.WithController(camera.NewOrbitController(camera.WithRadius(25))),
	)
	u := cam.Uniform()

	objects := make([]game_object.Object, 300)
	for i := range objects {
		common.BuildModelMatrix(objects[i].World[:],
			[3]float32{float32(i), float32(i % 7), -float32(i % 13)},
			[3]float32{0.1 * float32(i), 0, 0.3},
			[3]float32{1, 2, 1})
		objects[i].Enabled = i%5 != 0
	}

	c := NewCache()
	if err := c.Update(context.Background(), dev, &u, objects); err != nil {
		t.Fatal(err)
	}
	if c.Len() != len(objects) {
		t.Fatalf("Len = %d, want %d", c.Len(), len(objects))
	}

	var zero ObjectTransform
	for i := range objects {
		got := c.At(uint32(i))
		if !objects[i].Enabled {
			if *got != zero {
				t.Errorf("disabled object %d has a cached transform", i)
			}
			continue
		}
		var mv, mvp [16]float32
		common.Mul4(mv[:], u.View[:], objects[i].World[:])
		common.Mul4(mvp[:], u.ViewProj[:], objects[i].World[:])
		if got.ModelView != mv || got.ModelViewProjection != mvp {
			t.Fatalf("object %d cache differs from host multiply", i)
		}
	}
}

func TestObjectTransformMarshal(t *testing.T) {
	var tr ObjectTransform
	tr.ModelView[3] = 1.5
	tr.ModelViewProjection[15] = -2
	buf := tr.Marshal()
	if len(buf) != tr.Size() {
		t.Fatalf("len = %d, want %d", len(buf), tr.Size())
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(buf[12:])); got != 1.5 {
		t.Errorf("mv[3] = %v, want 1.5", got)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(buf[124:])); got != -2 {
		t.Errorf("mvp[15] = %v, want -2", got)
	}

	c := &Cache{transforms: []ObjectTransform{tr, tr}}
	if len(c.Marshal()) != 2*GPUObjectTransformSize {
		t.Error("cache marshal size mismatch")
	}

	loaded := NewCache()
	loaded.Load(c.Marshal())
	if loaded.Len() != 2 || *loaded.At(1) != tr {
		t.Errorf("Load did not reverse Marshal: %d entries", loaded.Len())
	}
}
