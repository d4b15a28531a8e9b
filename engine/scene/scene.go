package scene

import (
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-cull/engine/camera"
	"github.com/Carmen-Shannon/oxy-cull/engine/game_object"
	"github.com/Carmen-Shannon/oxy-cull/engine/light"
	"github.com/Carmen-Shannon/oxy-cull/engine/model"
)

// prepChunk is how many objects one prep task advances and records.
const prepChunk = 1024

// Scene is the registry the frame driver culls: the game objects with their shared mesh storage,
// the main camera and the lights. An object's ID is its slot in the object table; removing an
// object only disables its slot so every other ID stays valid for temporal lookups.
// Thread-safe for concurrent access.
type Scene interface {
	// Name returns the scene's identifier.
	Name() string

	// SetName sets the scene's identifier.
	SetName(name string)

	// Active returns whether this scene is currently driven by the engine.
	Active() bool

	// SetActive sets whether this scene is driven by the engine.
	SetActive(active bool)

	// Camera returns the scene's main camera.
	Camera() camera.Camera

	// SetCamera replaces the scene's main camera.
	//
	// Parameters:
	//   - cam: the new camera
	SetCamera(cam camera.Camera)

	// Store returns the shared vertex and index storage of the scene's meshes.
	Store() model.Store

	// Count returns the number of object slots, including removed ones.
	Count() int

	// Add registers an object and assigns its ID.
	//
	// Parameters:
	//   - obj: the object; its mesh must come from Store
	//
	// Returns:
	//   - uint32: the assigned ID
	Add(obj game_object.GameObject) uint32

	// Get returns the object with the given ID, or nil.
	//
	// Parameters:
	//   - id: the object ID
	Get(id uint32) game_object.GameObject

	// Remove disables the object and frees its slot. The slot is never reused.
	//
	// Parameters:
	//   - id: the object ID
	Remove(id uint32)

	// AddLight registers a light.
	//
	// Parameters:
	//   - l: the light
	AddLight(l light.Light)

	// RemoveLight unregisters a light.
	//
	// Parameters:
	//   - l: the light
	RemoveLight(l light.Light)

	// Lights returns a copy of the registered lights.
	Lights() []light.Light

	// ShadowCameras returns the shadow-caster camera of every shadow-casting light, centered on
	// the main camera's target.
	//
	// Returns:
	//   - []camera.Camera: one camera per eligible light, in registration order
	ShadowCameras() []camera.Camera

	// Prepare advances every object by dt and builds this frame's object table. The work is
	// split across the scene's worker pool.
	//
	// Parameters:
	//   - dt: elapsed time in seconds
	//
	// Returns:
	//   - []game_object.Object: the object table indexed by object ID
	Prepare(dt float32) []game_object.Object

	// Close stops the scene's worker pool.
	Close()
}

type scene struct {
	mu *sync.RWMutex

	name   string
	active bool
	cam    camera.Camera
	store  model.Store

	objects []game_object.GameObject // nil for removed slots
	lights  []light.Light
	table   []game_object.Object

	computePool    worker.DynamicWorkerPool
	computeWorkers int
	poolOnce       sync.Once
}

var _ Scene = &scene{}

// NewScene creates a new Scene with the given main camera. The camera is required and NewScene
// panics if it is nil.
//
// Parameters:
//   - name: the name of the scene
//   - cam: the main camera (must not be nil)
//   - options: functional options to further configure the scene
//
// Returns:
//   - Scene: the newly created scene
func NewScene(name string, cam camera.Camera, options ...SceneBuilderOption) Scene {
	if cam == nil {
		panic("scene: NewScene requires a non-nil Camera")
	}

	s := &scene{
		mu:             &sync.RWMutex{},
		name:           name,
		cam:            cam,
		computeWorkers: max(runtime.NumCPU()-1, 1),
	}
	for _, option := range options {
		option(s)
	}
	if s.store == nil {
		s.store = model.NewStore()
	}

	// Initialize the pool after options so WithComputeWorkers can override the default.
	s.computePool = worker.NewDynamicWorkerPool(s.computeWorkers, 256, 1*time.Second)
	return s
}

func (s *scene) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

func (s *scene) SetName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
}

func (s *scene) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *scene) SetActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
}

func (s *scene) Camera() camera.Camera {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cam
}

func (s *scene) SetCamera(cam camera.Camera) {
	if cam == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cam = cam
}

func (s *scene) Store() model.Store {
	return s.store
}

func (s *scene) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

func (s *scene) Add(obj game_object.GameObject) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uint32(len(s.objects))
	obj.SetID(id)
	s.objects = append(s.objects, obj)
	return id
}

func (s *scene) Get(id uint32) game_object.GameObject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if int(id) >= len(s.objects) {
		return nil
	}
	return s.objects[id]
}

func (s *scene) Remove(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(id) >= len(s.objects) || s.objects[id] == nil {
		return
	}
	s.objects[id].SetEnabled(false)
	s.objects[id] = nil
}

func (s *scene) AddLight(l light.Light) {
	if l == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lights = append(s.lights, l)
}

func (s *scene) RemoveLight(l light.Light) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.lights {
		if existing == l {
			s.lights = append(s.lights[:i], s.lights[i+1:]...)
			return
		}
	}
}

func (s *scene) Lights() []light.Light {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]light.Light, len(s.lights))
	copy(out, s.lights)
	return out
}

func (s *scene) ShadowCameras() []camera.Camera {
	cam := s.Camera()
	var center [3]float32
	if ctrl := cam.Controller(); ctrl != nil {
		center[0], center[1], center[2] = ctrl.Target()
	}
	var out []camera.Camera
	for _, l := range s.Lights() {
		if sc, ok := l.ShadowCamera(center); ok {
			out = append(out, sc)
		}
	}
	return out
}

func (s *scene) Prepare(dt float32) []game_object.Object {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.objects)
	if cap(s.table) < n {
		s.table = make([]game_object.Object, n)
	}
	s.table = s.table[:n]

	// Chunks write disjoint ranges of the table. A WaitGroup gives the per-frame barrier
	// since pool.Wait() blocks until workers idle-exit.
	var wg sync.WaitGroup
	taskID := 0
	for start := 0; start < n; start += prepChunk {
		end := min(start+prepChunk, n)
		wg.Add(1)
		lo, hi := start, end
		s.computePool.SubmitTask(worker.Task{
			ID: taskID,
			Do: func() (any, error) {
				defer wg.Done()
				for id := lo; id < hi; id++ {
					obj := s.objects[id]
					if obj == nil {
						s.table[id] = game_object.Object{}
						continue
					}
					obj.Advance(dt)
					s.table[id] = obj.Record()
				}
				return nil, nil
			},
		})
		taskID++
	}
	wg.Wait()

	out := make([]game_object.Object, n)
	copy(out, s.table)
	return out
}

func (s *scene) Close() {
	s.poolOnce.Do(func() { s.computePool.Stop() })
}
