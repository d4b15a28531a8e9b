package camera

import (
	"math"
	"sync"
)

type orbitController struct {
	mu *sync.Mutex

	position [3]float32
	target   [3]float32

	radius    float32
	azimuth   float32
	elevation float32

	minRadius    float32
	maxRadius    float32
	minElevation float32
	maxElevation float32

	zoomSpeed float32
}

var _ CameraController = &orbitController{}

// NewOrbitController creates an orbit controller around the origin.
//
// Parameters:
//   - options: functional options to configure the controller
//
// Returns:
//   - CameraController: the newly created controller
func NewOrbitController(options ...CameraControllerOption) CameraController {
	cc := &orbitController{
		mu:           &sync.Mutex{},
		radius:       250.0,
		elevation:    float32(math.Pi / 6),
		minRadius:    1.0,
		maxRadius:    5000.0,
		minElevation: float32(-math.Pi/2 + 0.05),
		maxElevation: float32(math.Pi/2 - 0.05),
		zoomSpeed:    15.0,
	}
	for _, option := range options {
		option(cc)
	}
	cc.clamp()
	cc.updatePosition()
	return cc
}

// updatePosition recomputes the eye from the spherical coordinates. Caller holds the mutex.
func (cc *orbitController) updatePosition() {
	sinElev, cosElev := math.Sincos(float64(cc.elevation))
	sinAzim, cosAzim := math.Sincos(float64(cc.azimuth))

	cc.position[0] = cc.target[0] + cc.radius*float32(cosElev*sinAzim)
	cc.position[1] = cc.target[1] + cc.radius*float32(sinElev)
	cc.position[2] = cc.target[2] + cc.radius*float32(cosElev*cosAzim)
}

func (cc *orbitController) clamp() {
	cc.radius = min(max(cc.radius, cc.minRadius), cc.maxRadius)
	cc.elevation = min(max(cc.elevation, cc.minElevation), cc.maxElevation)
}

func (cc *orbitController) Position() (x, y, z float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.position[0], cc.position[1], cc.position[2]
}

func (cc *orbitController) Target() (x, y, z float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.target[0], cc.target[1], cc.target[2]
}

func (cc *orbitController) SetTarget(x, y, z float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.target = [3]float32{x, y, z}
	cc.updatePosition()
}

func (cc *orbitController) Orbit(dAzimuth, dElevation float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.azimuth += dAzimuth
	cc.elevation += dElevation
	cc.clamp()
	cc.updatePosition()
}

func (cc *orbitController) Zoom(delta float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.radius -= delta * cc.zoomSpeed
	cc.clamp()
	cc.updatePosition()
}

func (cc *orbitController) Pan(right, up, forward float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	// backward matches the LookAt z axis; right = up(0,1,0) x backward.
	b := [3]float32{cc.position[0] - cc.target[0], cc.position[1] - cc.target[1], cc.position[2] - cc.target[2]}
	bl := float32(math.Sqrt(float64(b[0]*b[0] + b[1]*b[1] + b[2]*b[2])))
	if bl < 1e-8 {
		return
	}
	b = [3]float32{b[0] / bl, b[1] / bl, b[2] / bl}
	r := [3]float32{b[2], 0, -b[0]}
	rl := float32(math.Sqrt(float64(r[0]*r[0] + r[2]*r[2])))
	if rl < 1e-8 {
		return
	}
	r = [3]float32{r[0] / rl, 0, r[2] / rl}
	u := [3]float32{
		b[1]*r[2] - b[2]*r[1],
		b[2]*r[0] - b[0]*r[2],
		b[0]*r[1] - b[1]*r[0],
	}

	for i := 0; i < 3; i++ {
		d := r[i]*right + u[i]*up - b[i]*forward
		cc.target[i] += d
		cc.position[i] += d
	}
}

func (cc *orbitController) Radius() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.radius
}

func (cc *orbitController) Azimuth() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.azimuth
}

func (cc *orbitController) Elevation() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.elevation
}
