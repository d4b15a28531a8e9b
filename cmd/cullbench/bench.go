package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"math"
	"os"
	"path/filepath"
	"runtime"

	"github.com/Carmen-Shannon/oxy-cull/common"
	"github.com/Carmen-Shannon/oxy-cull/engine"
	"github.com/Carmen-Shannon/oxy-cull/engine/camera"
	"github.com/Carmen-Shannon/oxy-cull/engine/compute"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/hiz"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/visibility"
	"github.com/Carmen-Shannon/oxy-cull/engine/debugview"
	"github.com/Carmen-Shannon/oxy-cull/engine/game_object"
	"github.com/Carmen-Shannon/oxy-cull/engine/light"
	"github.com/Carmen-Shannon/oxy-cull/engine/model"
	"github.com/Carmen-Shannon/oxy-cull/engine/profiler"
	"github.com/Carmen-Shannon/oxy-cull/engine/renderer"
	"github.com/Carmen-Shannon/oxy-cull/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-cull/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-cull/engine/scene"
)

const (
	// frameDelta is the simulated time step of every frame.
	frameDelta = float32(1.0 / 60.0)
	// stripWidth is the pixel width of the visibility strip.
	stripWidth = 256
)

// frameResult is the main camera's output of the last frame plus the inputs it was culled from.
type frameResult struct {
	main     cull.Result
	shadows  []cull.Result
	objects  []game_object.Object
	vertices model.View
}

// bench owns the synthetic scene, its material library and the compute device both backends share.
type bench struct {
	cfg     benchConfig
	device  compute.Device
	scene   scene.Scene
	library *material.Library[material.BindlessProfile]
}

// checkerTexture returns an encoded 8x8 two-tone checker.
func checkerTexture() (*common.ImportedTexture, error) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			c := color.RGBA{R: 230, G: 230, B: 230, A: 255}
			if (x+y)%2 == 1 {
				c = color.RGBA{R: 90, G: 90, B: 110, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return &common.ImportedTexture{Name: "checker", Data: buf.Bytes()}, nil
}

// newLibrary builds the materials the field cycles through. Index 0 is the textured ground; the
// cubes sample slot 1, which is left empty.
func newLibrary() (*material.Library[material.BindlessProfile], error) {
	tex, err := checkerTexture()
	if err != nil {
		return nil, err
	}
	profile, err := material.NewBindlessProfile(tex, nil)
	if err != nil {
		return nil, err
	}
	return material.NewLibrary([4]float32{1, 0, 1, 1},
		material.NewMaterial(profile, material.WithName("ground"), material.WithTextureSlot(0)),
		material.NewMaterial(profile, material.WithName("brick"), material.WithTextureSlot(1), material.WithBaseColor([4]float32{0.8, 0.3, 0.2, 1})),
		material.NewMaterial(profile, material.WithName("steel"), material.WithTextureSlot(1), material.WithBaseColor([4]float32{0.6, 0.65, 0.7, 1}), material.WithMetallic(1), material.WithRoughness(0.3)),
		material.NewMaterial(profile, material.WithName("moss"), material.WithTextureSlot(1), material.WithBaseColor([4]float32{0.3, 0.6, 0.25, 1})),
	), nil
}

func newBench(cfg benchConfig) (*bench, error) {
	lib, err := newLibrary()
	if err != nil {
		return nil, err
	}

	workers := common.Coalesce(max(cfg.workers, 0), runtime.NumCPU())
	b := &bench{cfg: cfg, device: compute.NewDevice(compute.WithWorkers(workers)), library: lib}

	extent := float32(cfg.side) * float32(cfg.spacing)
	cam := camera.NewCamera(
		camera.WithName("main"),
		camera.WithResolution(uint32(cfg.width), uint32(cfg.height)),
		camera.WithController(camera.NewOrbitController(
			camera.WithRadius(extent*0.6),
			camera.WithElevation(0.35),
			camera.WithRadiusLimits(1, extent*4),
		)),
	)
	b.scene = scene.NewScene("field", cam, scene.WithActive(true), scene.WithComputeWorkers(b.device.Workers()))
	if err := b.populate(extent); err != nil {
		b.close()
		return nil, err
	}
	if cfg.shadows {
		b.scene.AddLight(light.NewLight(light.LightTypeDirectional,
			light.WithName("sun"),
			light.WithDirection(-0.4, -1, -0.3),
			light.WithCastsShadows(true),
		))
	}
	return b, nil
}

// populate lays out side*side cubes on a ground grid. Cubes cycle through the non-ground
// materials and spin at rates derived from their index.
func (b *bench) populate(extent float32) error {
	store := b.scene.Store()
	ground, err := store.AddMesh(model.Grid(extent+float32(b.cfg.spacing), b.cfg.side))
	if err != nil {
		return err
	}
	cube, err := store.AddMesh(model.Cube(0.5))
	if err != nil {
		return err
	}

	b.scene.Add(game_object.NewGameObject(game_object.WithMesh(ground), game_object.WithMaterialIndex(0)))
	half := extent / 2
	materials := uint32(b.library.Len() - 1)
	for i := 0; i < b.cfg.side*b.cfg.side; i++ {
		x := float32(i%b.cfg.side)*float32(b.cfg.spacing) - half
		z := float32(i/b.cfg.side)*float32(b.cfg.spacing) - half
		spin := float32(i%7) * 0.15
		b.scene.Add(game_object.NewGameObject(
			game_object.WithMesh(cube),
			game_object.WithPosition(x, 0.5, z),
			game_object.WithMaterialIndex(1+uint32(i)%materials),
			game_object.WithRotationSpeed(0, spin, 0),
		))
	}
	return nil
}

func (b *bench) objectCount() int {
	return b.scene.Count()
}

// runCPU drives the scene through the engine's frame loop on the compute device.
func (b *bench) runCPU(ctx context.Context) (frameResult, error) {
	if b.cfg.validate {
		if err := shader.ValidateKernels(); err != nil {
			return frameResult{}, err
		}
		log.Printf("[Bench] %d kernels validated", len(shader.KernelKeys()))
	}
	eng := engine.NewEngine(
		engine.WithDevice(b.device),
		engine.WithProfiling(true),
		engine.WithGranularity(b.cfg.granularity),
		engine.WithOcclusion(b.cfg.occlusion),
		engine.WithTemporal(b.cfg.temporal),
		engine.WithDepthFeedback(b.cfg.occlusion),
		engine.WithScene(0, b.scene),
	)
	defer eng.Close()

	var last engine.SceneFrame
	for f := 0; f < b.cfg.frames; f++ {
		if err := ctx.Err(); err != nil {
			return frameResult{}, err
		}
		b.scene.Camera().Controller().Orbit(float32(b.cfg.orbit), 0)
		out, err := eng.Frame(ctx, frameDelta)
		if err != nil {
			return frameResult{}, err
		}
		if len(out.Scenes) > 0 {
			last = out.Scenes[0]
		}
	}
	// dt 0 rebuilds the table of the last frame without advancing it.
	return frameResult{
		main:     last.Main,
		shadows:  last.Shadows,
		objects:  b.scene.Prepare(0),
		vertices: b.scene.Store().Snapshot(),
	}, nil
}

// runGPU drives the same frame sequence as the engine through a GPUCuller. Depth feedback is
// rasterized on the host and reduced into a pyramid on the device.
func (b *bench) runGPU(ctx context.Context) (frameResult, error) {
	c, err := renderer.NewGPUCuller(
		renderer.WithCullGranularity(b.cfg.granularity),
		renderer.WithCullOcclusion(b.cfg.occlusion),
		renderer.WithCullTemporal(b.cfg.temporal),
		renderer.WithCullShaderValidation(b.cfg.validate),
	)
	if err != nil {
		return frameResult{}, fmt.Errorf("gpu backend: %w", err)
	}
	defer c.Close()

	prof := profiler.NewProfiler()
	cam := b.scene.Camera()
	w, h := cam.Resolution()
	depth := hiz.NewDepthBuffer(w, h)

	var res frameResult
	for f := 0; f < b.cfg.frames; f++ {
		if err := ctx.Err(); err != nil {
			return frameResult{}, err
		}
		cam.Controller().Orbit(float32(b.cfg.orbit), 0)
		res, err = b.gpuFrame(ctx, c, cam, depth)
		if err != nil {
			return frameResult{}, fmt.Errorf("frame %d: %w", f, err)
		}
		prof.Record(c.Stats()...)
		prof.Tick()
	}
	return res, nil
}

func (b *bench) gpuFrame(ctx context.Context, c renderer.GPUCuller, cam camera.Camera, depth *hiz.DepthBuffer) (frameResult, error) {
	res := frameResult{
		objects:  b.scene.Prepare(frameDelta),
		vertices: b.scene.Store().Snapshot(),
	}
	if _, err := c.BeginFrame(res.objects, res.vertices); err != nil {
		return res, err
	}
	defer c.EndFrame()

	cam.Update()
	var err error
	res.main, err = c.Cull(ctx, cam)
	if err != nil {
		return res, err
	}
	for _, sc := range b.scene.ShadowCameras() {
		shadow, err := c.Cull(ctx, sc)
		if err != nil {
			return res, err
		}
		res.shadows = append(res.shadows, shadow)
	}
	if !b.cfg.occlusion {
		return res, nil
	}
	depth.Clear()
	cull.RasterizeVisible(&res.main, res.objects, res.vertices, depth)
	return res, c.SubmitDepth(ctx, cam, depth.Texels, depth.Width, depth.Height)
}

// report logs the last frame's statistics of every camera.
func report(r frameResult) {
	for _, res := range append([]cull.Result{r.main}, r.shadows...) {
		s := res.Stats
		log.Printf("[Bench] %s: %s granularity | batches %d | invocations %d | visible %d | rejected %d | predicted %d | residual %d | draws %d | cull %v",
			s.Camera, s.Granularity, s.Batches, s.Invocations, s.Count(visibility.Visible), s.Rejected(),
			s.Predicted, s.Residual, s.VisibleObjects, s.Duration)
	}
}

// objectColor maps an object to its material's color at the texture center.
func (b *bench) objectColor(objects []game_object.Object) debugview.ObjectColor {
	return func(id uint32) color.Color {
		if int(id) >= len(objects) {
			return color.Black
		}
		c := b.library.Color(objects[id].MaterialIndex)
		return color.RGBA{
			R: uint8(math.Round(float64(c[0]) * 255)),
			G: uint8(math.Round(float64(c[1]) * 255)),
			B: uint8(math.Round(float64(c[2]) * 255)),
			A: 255,
		}
	}
}

// writeDebug rasterizes the last frame's visible triangles, reduces them into a pyramid and writes
// the finest, middle and coarsest levels plus the visibility strip into dir.
func (b *bench) writeDebug(ctx context.Context, dir string, r frameResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	w, h := b.scene.Camera().Resolution()
	depth := hiz.NewDepthBuffer(w, h)
	cull.RasterizeVisible(&r.main, r.objects, r.vertices, depth)
	pyramid, err := hiz.Build(ctx, b.device, depth.Texels, w, h)
	if err != nil {
		return err
	}

	top := len(pyramid.Levels()) - 1
	for _, level := range []int{0, top / 2, top} {
		img, err := debugview.DepthLevel(pyramid, level)
		if err != nil {
			return err
		}
		if err := debugview.WritePNG(filepath.Join(dir, fmt.Sprintf("hiz_level_%02d.png", level)), img); err != nil {
			return err
		}
	}

	strip, err := debugview.VisibilityStrip(r.main.Plan, r.main.Visible, stripWidth, b.objectColor(r.objects))
	if err != nil {
		return err
	}
	return debugview.WritePNG(filepath.Join(dir, "visibility.png"), strip)
}

func (b *bench) close() {
	if b.scene != nil {
		b.scene.Close()
	}
	b.device.Close()
}
