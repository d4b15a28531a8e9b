package profiler

import (
	"bytes"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-cull/engine/cull"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/visibility"
)

func stats(camera string, tested, visible, predicted, residual uint64) cull.Stats {
	s := cull.Stats{Camera: camera, Duration: time.Millisecond}
	s.Tested = tested
	s.Outcomes[visibility.Visible] = visible
	s.Outcomes[visibility.FrustumCulled] = tested - visible
	s.Predicted = predicted
	s.Residual = residual
	return s
}

func TestTickAveragesPerCamera(t *testing.T) {
	var buf bytes.Buffer
	p := NewProfiler(WithInterval(0), WithLogger(log.New(&buf, "", 0)))

	p.Record(stats("main", 100, 40, 30, 10), stats("sun_shadow", 100, 90, 0, 90))
	p.Record(stats("main", 200, 60, 50, 10))
	if !p.Tick() {
		t.Fatal("Tick with a zero interval did not log")
	}

	got := p.Summaries()
	if len(got) != 2 || got[0].Camera != "main" || got[1].Camera != "sun_shadow" {
		t.Fatalf("Summaries() = %+v", got)
	}
	main := got[0]
	if main.Frames != 2 || main.Tested != 150 || main.Visible != 50 || main.Frustum != 100 {
		t.Errorf("main summary = %+v", main)
	}
	if r := main.PredictedRatio(); r != 0.8 {
		t.Errorf("PredictedRatio() = %v, want 0.8", r)
	}
	if got[1].PredictedRatio() != 0 {
		t.Errorf("shadow PredictedRatio() = %v, want 0", got[1].PredictedRatio())
	}

	out := buf.String()
	for _, want := range []string{"[Profiler] FPS:", "[Profiler] main: tested 150", "[Profiler] sun_shadow:"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	p.Tick()
	if strings.Contains(buf.String(), "main:") {
		t.Error("interval was not reset after logging")
	}
}

func TestTickWaitsForInterval(t *testing.T) {
	var buf bytes.Buffer
	p := NewProfiler(WithInterval(time.Hour), WithLogger(log.New(&buf, "", 0)))
	p.Record(stats("main", 1, 1, 0, 1))
	if p.Tick() || buf.Len() != 0 {
		t.Errorf("Tick logged before the interval elapsed: %q", buf.String())
	}
}
