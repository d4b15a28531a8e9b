package light

import (
	"math"

	"github.com/Carmen-Shannon/oxy-cull/engine/camera"
)

// ShadowMapResolution is the default width and height in texels of a shadow map.
const ShadowMapResolution = 2048

// DefaultShadowHalfExtent is the default orthographic half-extent (in world units)
// used for the directional light shadow frustum.
const DefaultShadowHalfExtent float32 = 40.0

// DefaultShadowNear is the default near plane of shadow projections.
const DefaultShadowNear float32 = 0.1

// DefaultShadowFar is the default far plane of the directional light's orthographic projection.
const DefaultShadowFar float32 = 200.0

// ShadowSettings describes the shadow map a light renders.
type ShadowSettings struct {
	Resolution uint32
	HalfExtent float32 // directional only
	Near       float32
	Far        float32 // directional only; spot lights use their range
	Winding    camera.WindingMode
}

// DefaultShadowSettings returns the settings new lights start with. Shadow maps keep both
// windings so thin casters seen from behind still write depth.
func DefaultShadowSettings() ShadowSettings {
	return ShadowSettings{
		Resolution: ShadowMapResolution,
		HalfExtent: DefaultShadowHalfExtent,
		Near:       DefaultShadowNear,
		Far:        DefaultShadowFar,
		Winding:    camera.WindingBoth,
	}
}

func (l *lightImpl) ShadowCamera(center [3]float32) (camera.Camera, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled || !l.castsShadows || l.lightType == LightTypePoint {
		return nil, false
	}

	var (
		target [3]float32
		radius float32
	)
	switch l.lightType {
	case LightTypeDirectional:
		// The eye sits half the depth range before the center so the map covers both sides.
		target, radius = center, l.shadow.Far/2
	default:
		radius = 1
		for a := range target {
			target[a] = l.position[a] + l.direction[a]*radius
		}
	}
	azimuth, elevation := aim(l.direction)
	ctrl := camera.NewOrbitController(
		camera.WithTarget(target[0], target[1], target[2]),
		camera.WithRadiusLimits(radius, radius),
		camera.WithRadius(radius),
		camera.WithAzimuth(azimuth),
		camera.WithElevation(elevation),
	)

	if l.shadowCamera == nil {
		options := []camera.CameraBuilderOption{
			camera.WithName(l.name + "_shadow"),
			camera.WithResolution(l.shadow.Resolution, l.shadow.Resolution),
			camera.WithShadowCaster(true),
			camera.WithWindingMode(l.shadow.Winding),
			camera.WithController(ctrl),
		}
		if l.lightType == LightTypeDirectional {
			options = append(options, camera.WithOrthographic(l.shadow.HalfExtent, l.shadow.Near, l.shadow.Far))
		} else {
			options = append(options, camera.WithFov(2*l.outerCone), camera.WithNear(l.shadow.Near))
		}
		l.shadowCamera = camera.NewCamera(options...)
		return l.shadowCamera, true
	}
	l.shadowCamera.SetController(ctrl)
	return l.shadowCamera, true
}

// aim returns the orbit angles that put the eye behind the target along dir.
func aim(dir [3]float32) (azimuth, elevation float32) {
	back := [3]float64{-float64(dir[0]), -float64(dir[1]), -float64(dir[2])}
	elevation = float32(math.Asin(max(-1, min(1, back[1]))))
	azimuth = float32(math.Atan2(back[0], back[2]))
	return azimuth, elevation
}
