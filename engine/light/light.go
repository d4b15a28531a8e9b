// Package light holds the scene's light sources. The cull subsystem only cares about lights that
// cast shadows: each one contributes a shadow-caster camera that is culled like the main view.
package light

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-cull/engine/camera"
)

var lightCount atomic.Uint64

// LightType identifies the kind of light source.
type LightType int

const (
	// LightTypeDirectional represents a light with no position, only direction.
	// Its shadow camera is orthographic and follows a center point.
	LightTypeDirectional LightType = iota

	// LightTypePoint represents a light that emits in all directions from a position.
	// Point lights have no single shadow camera.
	LightTypePoint

	// LightTypeSpot represents a light that emits in a cone from a position along a direction.
	// Its shadow camera is a perspective camera covering the outer cone.
	LightTypeSpot
)

// String returns the light type name.
func (t LightType) String() string {
	switch t {
	case LightTypeDirectional:
		return "directional"
	case LightTypePoint:
		return "point"
	case LightTypeSpot:
		return "spot"
	}
	return "light(" + strconv.Itoa(int(t)) + ")"
}

// lightImpl is the implementation of the Light interface.
type lightImpl struct {
	mu *sync.Mutex

	name         string
	lightType    LightType
	position     [3]float32
	direction    [3]float32
	lightRange   float32
	outerCone    float32 // half-angle in radians
	enabled      bool
	castsShadows bool

	shadow       ShadowSettings
	shadowCamera camera.Camera
}

// Light defines the interface for a light source in the scene.
//
// All light types share this interface; type-specific properties (e.g. the cone angle of spot
// lights) are ignored when not applicable.
type Light interface {
	// Name returns the light's identifier. Its shadow camera is named after it.
	//
	// Returns:
	//   - string: the light name
	Name() string

	// Type returns the kind of light source.
	//
	// Returns:
	//   - LightType: the light type (directional, point, or spot)
	Type() LightType

	// Position returns the world-space position of the light.
	// Meaningless for directional lights.
	//
	// Returns:
	//   - [3]float32: position as (x, y, z)
	Position() [3]float32

	// Direction returns the normalized direction of the light.
	// For directional lights this is the light direction. For spot lights this
	// is the cone axis. Meaningless for point lights.
	//
	// Returns:
	//   - [3]float32: normalized direction as (x, y, z)
	Direction() [3]float32

	// Range returns the maximum distance the light reaches. Spot shadow cameras use it as their
	// depth range.
	//
	// Returns:
	//   - float32: the range value
	Range() float32

	// OuterCone returns the half-angle of a spot light's cone in radians.
	//
	// Returns:
	//   - float32: the outer half-angle
	OuterCone() float32

	// Enabled returns whether this light is active.
	//
	// Returns:
	//   - bool: true if the light is enabled
	Enabled() bool

	// CastsShadows returns whether this light renders a shadow map and therefore needs culling.
	//
	// Returns:
	//   - bool: true if the light casts shadows
	CastsShadows() bool

	// Shadow returns the shadow map settings.
	//
	// Returns:
	//   - ShadowSettings: resolution and projection extents
	Shadow() ShadowSettings

	// ShadowCamera positions and returns the light's shadow-caster camera. The same camera is
	// returned on every call so per-camera cull state survives across frames.
	//
	// Parameters:
	//   - center: the world point a directional shadow map is centered on, usually the main
	//     camera's target
	//
	// Returns:
	//   - camera.Camera: the shadow camera
	//   - bool: false when the light is disabled, casts no shadows or is a point light
	ShadowCamera(center [3]float32) (camera.Camera, bool)

	// SetPosition sets the world-space position of the light.
	//
	// Parameters:
	//   - x, y, z: position components
	SetPosition(x, y, z float32)

	// SetDirection sets the direction of the light and normalizes it.
	//
	// Parameters:
	//   - x, y, z: direction components (will be normalized)
	SetDirection(x, y, z float32)

	// SetEnabled enables or disables the light.
	//
	// Parameters:
	//   - enabled: true to enable
	SetEnabled(enabled bool)

	// SetCastsShadows sets whether the light is eligible for shadow mapping.
	//
	// Parameters:
	//   - castsShadows: true to enable shadow casting
	SetCastsShadows(castsShadows bool)
}

var _ Light = &lightImpl{}

// NewLight creates a new Light of the specified type with sensible defaults and
// any provided options applied.
//
// Parameters:
//   - lightType: the kind of light to create (directional, point, or spot)
//   - opts: variadic list of LightBuilderOption functions to configure the light
//
// Returns:
//   - Light: a new Light instance
func NewLight(lightType LightType, opts ...LightBuilderOption) Light {
	l := &lightImpl{
		mu:         &sync.Mutex{},
		name:       "light_" + strconv.FormatUint(lightCount.Add(1)-1, 10),
		lightType:  lightType,
		direction:  [3]float32{0, -1, 0},
		lightRange: 10.0,
		outerCone:  degToRad(35),
		enabled:    true,
		shadow:     DefaultShadowSettings(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *lightImpl) Name() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.name
}

func (l *lightImpl) Type() LightType {
	return l.lightType
}

func (l *lightImpl) Position() [3]float32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.position
}

func (l *lightImpl) Direction() [3]float32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.direction
}

func (l *lightImpl) Range() float32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lightRange
}

func (l *lightImpl) OuterCone() float32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.outerCone
}

func (l *lightImpl) Enabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

func (l *lightImpl) CastsShadows() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.castsShadows
}

func (l *lightImpl) Shadow() ShadowSettings {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.shadow
}

func (l *lightImpl) SetPosition(x, y, z float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.position = [3]float32{x, y, z}
}

func (l *lightImpl) SetDirection(x, y, z float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.direction = normalize3(x, y, z)
}

func (l *lightImpl) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
}

func (l *lightImpl) SetCastsShadows(castsShadows bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.castsShadows = castsShadows
}
