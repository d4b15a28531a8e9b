package game_object

import (
	"github.com/Carmen-Shannon/oxy-cull/engine/model"
)

// GameObjectBuilderOption is a functional option for configuring a GameObject during construction.
type GameObjectBuilderOption func(*gameObject)

// WithEnabled sets whether the GameObject takes part in culling.
//
// Parameters:
//   - enabled: true to cull and draw the object, false to skip it
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the Enabled state
func WithEnabled(enabled bool) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.enabled.Store(enabled)
	}
}

// WithMesh sets the mesh range the GameObject draws.
//
// Parameters:
//   - mesh: the range returned by model.Store.AddMesh
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the mesh
func WithMesh(mesh model.MeshRange) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.mesh = mesh
	}
}

// WithMaterialIndex sets the material index of the GameObject.
//
// Parameters:
//   - index: the material index
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the material index
func WithMaterialIndex(index uint32) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.materialIndex = index
	}
}

// WithPosition sets the initial world position of the GameObject.
//
// Parameters:
//   - x, y, z: position components
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the position
func WithPosition(x, y, z float32) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.position = [3]float32{x, y, z}
	}
}

// WithScale sets the initial scale of the GameObject.
//
// Parameters:
//   - sx, sy, sz: scale components
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the scale
func WithScale(sx, sy, sz float32) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.scale = [3]float32{sx, sy, sz}
	}
}

// WithRotation sets the initial Euler rotation of the GameObject.
//
// Parameters:
//   - rx, ry, rz: rotation angles in radians
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the rotation
func WithRotation(rx, ry, rz float32) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.rotation = [3]float32{rx, ry, rz}
	}
}

// WithRotationSpeed sets the rotation applied per second by Advance.
//
// Parameters:
//   - rx, ry, rz: rotation speed in radians per second
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the rotation speed
func WithRotationSpeed(rx, ry, rz float32) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.rotationSpeed = [3]float32{rx, ry, rz}
	}
}
