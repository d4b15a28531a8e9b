// Package profiler logs frame rate, memory and per-camera culling statistics at a fixed interval.
package profiler

import (
	"log"
	"runtime"
	"sort"
	"time"

	"github.com/Carmen-Shannon/oxy-cull/engine/cull"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/visibility"
)

// CameraSummary is the per-frame average of one camera's cull statistics over an interval.
type CameraSummary struct {
	Camera    string
	Frames    int
	Tested    float64
	Visible   float64
	Frustum   float64
	Backface  float64
	Pixel     float64
	Occluded  float64
	Predicted float64
	Residual  float64
	CullTime  time.Duration
}

// PredictedRatio returns the share of emitted triangles that came from last frame's visible set.
func (s CameraSummary) PredictedRatio() float64 {
	if emitted := s.Predicted + s.Residual; emitted > 0 {
		return s.Predicted / emitted
	}
	return 0
}

type accumulator struct {
	frames int
	totals visibility.Totals
	time   time.Duration
}

// Profiler tracks frame rate, memory statistics and cull statistics for performance monitoring.
// Outputs stats to the log at a configurable interval.
type Profiler struct {
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	logger  *log.Logger
	cameras map[string]*accumulator
	last    []CameraSummary
}

// NewProfiler creates a new Profiler with the options applied.
// Update interval defaults to 1 second and output goes to the standard logger.
//
// Parameters:
//   - options: a variadic list of ProfilerBuilderOption functions
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		lastTime:       time.Now(),
		updateInterval: time.Second,
		memStats:       runtime.MemStats{},
		logger:         log.Default(),
		cameras:        make(map[string]*accumulator),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Record adds one frame's cull statistics to the running interval.
//
// Parameters:
//   - stats: the stats of every camera culled this frame
func (p *Profiler) Record(stats ...cull.Stats) {
	for _, s := range stats {
		acc, ok := p.cameras[s.Camera]
		if !ok {
			acc = &accumulator{}
			p.cameras[s.Camera] = acc
		}
		acc.frames++
		acc.totals.Add(s.Totals)
		acc.time += s.Duration
	}
}

// Summaries returns the per-camera averages of the last completed interval, ordered by camera.
//
// Returns:
//   - []CameraSummary: one entry per camera seen in the interval
func (p *Profiler) Summaries() []CameraSummary {
	return p.last
}

// Tick should be called once per frame to track frame timing.
// Logs performance statistics when the update interval has elapsed.
// Statistics include: FPS, heap usage, allocation rate, GC count/pause times, total memory,
// and one line per camera with its average cull outcome counts.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	p.frameCount++
	currentTime := time.Now()
	elapsed := currentTime.Sub(p.lastTime)

	if elapsed >= p.updateInterval {
		fps := float64(p.frameCount) / elapsed.Seconds()

		runtime.ReadMemStats(&p.memStats)
		allocMB := float64(p.memStats.Alloc) / 1024 / 1024
		sysMB := float64(p.memStats.Sys) / 1024 / 1024

		// Calculate allocation rate (MB/sec)
		allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
		allocRateMB := float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

		// Calculate GC pause stats (last pause and max recent pause)
		gcCount := p.memStats.NumGC
		var lastPauseUs, maxPauseUs uint64
		if gcCount > 0 {
			// PauseNs is a circular buffer of last 256 GC pauses
			lastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000

			startIdx := p.lastGCCount
			if gcCount-startIdx > 256 {
				startIdx = gcCount - 256
			}
			for i := startIdx; i < gcCount; i++ {
				pause := p.memStats.PauseNs[i%256] / 1000
				if pause > maxPauseUs {
					maxPauseUs = pause
				}
			}
		}

		p.logger.Printf("[Profiler] FPS: %.2f | Heap: %.2f MB | Alloc Rate: %.2f MB/s | GC: %d (last: %d µs, max: %d µs) | Sys: %.2f MB",
			fps, allocMB, allocRateMB, gcCount, lastPauseUs, maxPauseUs, sysMB)

		p.last = p.summarize()
		for _, s := range p.last {
			p.logger.Printf("[Profiler] %s: tested %.0f | visible %.0f | frustum %.0f | backface %.0f | pixel %.0f | occluded %.0f | predicted %.0f%% | cull %v",
				s.Camera, s.Tested, s.Visible, s.Frustum, s.Backface, s.Pixel, s.Occluded, s.PredictedRatio()*100, s.CullTime)
		}

		p.frameCount = 0
		p.lastTime = currentTime
		p.lastGCCount = gcCount
		p.lastTotalAlloc = p.memStats.TotalAlloc
		clear(p.cameras)
		return true
	}

	return false
}

// summarize averages the accumulated stats per frame.
func (p *Profiler) summarize() []CameraSummary {
	out := make([]CameraSummary, 0, len(p.cameras))
	for name, acc := range p.cameras {
		n := float64(acc.frames)
		t := &acc.totals
		out = append(out, CameraSummary{
			Camera:    name,
			Frames:    acc.frames,
			Tested:    float64(t.Tested) / n,
			Visible:   float64(t.Count(visibility.Visible)) / n,
			Frustum:   float64(t.Count(visibility.FrustumCulled)) / n,
			Backface:  float64(t.Count(visibility.BackfaceCulled)) / n,
			Pixel:     float64(t.Count(visibility.PixelCulled)) / n,
			Occluded:  float64(t.Count(visibility.Occluded)) / n,
			Predicted: float64(t.Predicted) / n,
			Residual:  float64(t.Residual) / n,
			CullTime:  acc.time / time.Duration(acc.frames),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Camera < out[j].Camera })
	return out
}
