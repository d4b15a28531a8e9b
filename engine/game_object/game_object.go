package game_object

import (
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-cull/common"
	"github.com/Carmen-Shannon/oxy-cull/engine/model"
)

type gameObject struct {
	mu      *sync.Mutex
	id      uint32
	enabled atomic.Bool

	mesh          model.MeshRange
	materialIndex uint32

	position      [3]float32
	rotation      [3]float32
	rotationSpeed [3]float32
	scale         [3]float32
}

// GameObject is a scene entity that draws one mesh from the shared model.Store.
// Its identity is the index of its record in the object table and stays stable across frames.
type GameObject interface {
	// ID returns the object's index in the object table.
	//
	// Returns:
	//   - uint32: the object ID
	ID() uint32

	// Enabled returns whether this object takes part in culling.
	//
	// Returns:
	//   - bool: true if enabled
	Enabled() bool

	// Mesh returns the mesh range this object draws.
	//
	// Returns:
	//   - model.MeshRange: the mesh location in the shared store
	Mesh() model.MeshRange

	// MaterialIndex returns the material this object is shaded with.
	//
	// Returns:
	//   - uint32: the material index
	MaterialIndex() uint32

	// TransformData reads all transform data under a single lock.
	//
	// Returns:
	//   - pos: position (x, y, z)
	//   - rot: Euler rotation in radians (x, y, z)
	//   - scale: scale (x, y, z)
	//   - rotSpeed: rotation speed in radians per second (x, y, z)
	TransformData() (pos, rot, scale, rotSpeed [3]float32)

	// SetID sets the object's table index. Called by the scene when the object is added.
	//
	// Parameters:
	//   - id: the ID to assign
	SetID(id uint32)

	// SetEnabled sets whether the object takes part in culling.
	//
	// Parameters:
	//   - enabled: true to enable
	SetEnabled(enabled bool)

	// SetMesh assigns the mesh range this object draws.
	//
	// Parameters:
	//   - mesh: the mesh location in the shared store
	SetMesh(mesh model.MeshRange)

	// SetMaterialIndex assigns the material index.
	//
	// Parameters:
	//   - index: the material index
	SetMaterialIndex(index uint32)

	// SetPosition updates the object's world position.
	//
	// Parameters:
	//   - x, y, z: new position components
	SetPosition(x, y, z float32)

	// SetRotation updates the object's Euler rotation in radians.
	//
	// Parameters:
	//   - rx, ry, rz: new rotation angles
	SetRotation(rx, ry, rz float32)

	// SetRotationSpeed updates the rotation applied per second by Advance.
	//
	// Parameters:
	//   - rx, ry, rz: rotation speed in radians per second
	SetRotationSpeed(rx, ry, rz float32)

	// SetScale updates the object's scale.
	//
	// Parameters:
	//   - sx, sy, sz: new scale components
	SetScale(sx, sy, sz float32)

	// Advance applies the rotation speed for dt seconds.
	//
	// Parameters:
	//   - dt: elapsed time in seconds
	Advance(dt float32)

	// Record builds the object-table entry for the current state.
	//
	// Returns:
	//   - Object: the record consumed by the cull kernels
	Record() Object
}

var _ GameObject = &gameObject{}

// NewGameObject creates a new GameObject with the specified options applied.
// Objects start enabled with unit scale.
//
// Parameters:
//   - options: functional options to configure the object
//
// Returns:
//   - GameObject: the configured object
func NewGameObject(options ...GameObjectBuilderOption) GameObject {
	g := &gameObject{
		mu:    &sync.Mutex{},
		scale: [3]float32{1, 1, 1},
	}
	g.enabled.Store(true)
	for _, opt := range options {
		opt(g)
	}
	return g
}

func (g *gameObject) ID() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.id
}

func (g *gameObject) Enabled() bool {
	return g.enabled.Load()
}

func (g *gameObject) Mesh() model.MeshRange {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mesh
}

func (g *gameObject) MaterialIndex() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.materialIndex
}

func (g *gameObject) TransformData() (pos, rot, scale, rotSpeed [3]float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.position, g.rotation, g.scale, g.rotationSpeed
}

func (g *gameObject) SetID(id uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.id = id
}

func (g *gameObject) SetEnabled(enabled bool) {
	g.enabled.Store(enabled)
}

func (g *gameObject) SetMesh(mesh model.MeshRange) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.mesh = mesh
}

func (g *gameObject) SetMaterialIndex(index uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.materialIndex = index
}

func (g *gameObject) SetPosition(x, y, z float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.position = [3]float32{x, y, z}
}

func (g *gameObject) SetRotation(rx, ry, rz float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rotation = [3]float32{rx, ry, rz}
}

func (g *gameObject) SetRotationSpeed(rx, ry, rz float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rotationSpeed = [3]float32{rx, ry, rz}
}

func (g *gameObject) SetScale(sx, sy, sz float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scale = [3]float32{sx, sy, sz}
}

func (g *gameObject) Advance(dt float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.rotation {
		g.rotation[i] += g.rotationSpeed[i] * dt
	}
}

func (g *gameObject) Record() Object {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec := Object{
		BoundsCenter:   g.mesh.BoundsCenter,
		BoundsRadius:   g.mesh.BoundsRadius,
		FirstIndex:     g.mesh.FirstIndex,
		IndexCount:     g.mesh.IndexCount,
		MaterialIndex:  g.materialIndex,
		PositionOffset: g.mesh.PositionOffset,
		NormalOffset:   g.mesh.NormalOffset,
		TexCoordOffset: g.mesh.TexCoordOffset,
		Enabled:        g.enabled.Load(),
	}
	common.BuildModelMatrix(rec.World[:], g.position, g.rotation, g.scale)
	return rec
}
