package cull

import (
	"fmt"
	"sort"
	"time"

	"github.com/Carmen-Shannon/oxy-cull/engine/cull/batch"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/visibility"
)

// Stats describes one camera's cull of one frame.
type Stats struct {
	Camera      string
	Frame       uint64
	Granularity batch.Granularity

	Batches     int
	Regions     int
	Invocations uint32
	Occlusion   bool // a depth pyramid was available

	visibility.Totals

	// VisibleObjects is the number of draws of an object-granularity frame.
	VisibleObjects int

	Duration time.Duration
}

// Rejected returns the number of tested primitives that did not pass.
func (s Stats) Rejected() uint64 {
	return s.Tested - s.Count(visibility.Visible)
}

// RejectedRatio returns Rejected / Tested, or 0 when nothing was tested.
func (s Stats) RejectedRatio() float64 {
	if s.Tested == 0 {
		return 0
	}
	return float64(s.Rejected()) / float64(s.Tested)
}

// String formats the stats on one line for logs.
func (s Stats) String() string {
	return fmt.Sprintf("%s[%s] tested %d | visible %d | frustum %d | backface %d | pixel %d | occluded %d | predicted %d | residual %d | %v",
		s.Camera, s.Granularity, s.Tested,
		s.Count(visibility.Visible),
		s.Count(visibility.FrustumCulled),
		s.Count(visibility.BackfaceCulled),
		s.Count(visibility.PixelCulled),
		s.Count(visibility.Occluded),
		s.Predicted, s.Residual, s.Duration)
}

func sortStats(stats []Stats) {
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Camera < stats[j].Camera
	})
}
