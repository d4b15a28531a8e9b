package scene

import (
	"github.com/Carmen-Shannon/oxy-cull/engine/game_object"
	"github.com/Carmen-Shannon/oxy-cull/engine/light"
	"github.com/Carmen-Shannon/oxy-cull/engine/model"
)

// SceneBuilderOption is a functional option for configuring a Scene.
type SceneBuilderOption func(*scene)

// WithActive sets the initial active state of the scene.
//
// Parameters:
//   - active: whether the scene starts active
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithActive(active bool) SceneBuilderOption {
	return func(s *scene) {
		s.active = active
	}
}

// WithStore uses an existing mesh store instead of creating an empty one.
//
// Parameters:
//   - store: the shared vertex and index storage
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithStore(store model.Store) SceneBuilderOption {
	return func(s *scene) {
		s.store = store
	}
}

// WithObjects registers objects during construction, assigning IDs in order.
//
// Parameters:
//   - objects: the objects to add
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithObjects(objects ...game_object.GameObject) SceneBuilderOption {
	return func(s *scene) {
		for _, obj := range objects {
			obj.SetID(uint32(len(s.objects)))
			s.objects = append(s.objects, obj)
		}
	}
}

// WithLights registers lights during construction.
//
// Parameters:
//   - lights: the lights to add
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithLights(lights ...light.Light) SceneBuilderOption {
	return func(s *scene) {
		s.lights = append(s.lights, lights...)
	}
}

// WithComputeWorkers sets how many workers prepare the object table in parallel.
// Defaults to NumCPU-1 (minimum 1).
//
// Parameters:
//   - n: worker count (values below 1 are raised to 1)
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithComputeWorkers(n int) SceneBuilderOption {
	return func(s *scene) {
		s.computeWorkers = max(n, 1)
	}
}
