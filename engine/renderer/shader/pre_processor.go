// pre_processor.go expands //@oxy:include lines in kernel sources. Each include key maps to a
// struct or helper source embedded by the package that owns the matching Go type, so the WGSL
// declaration and its Marshal method live side by side.
package shader

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Carmen-Shannon/oxy-cull/engine/camera"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/batch"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/compaction"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/hiz"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/transform"
	"github.com/Carmen-Shannon/oxy-cull/engine/game_object"
)

const annotationPrefix = "@oxy:"

// IncludeKey names a registered WGSL source that kernels pull in with //@oxy:include <key>.
type IncludeKey string

const (
	// IncludeCamera is the PerCameraUniform struct.
	IncludeCamera IncludeKey = "camera"

	// IncludeObjectRecord is the ObjectRecord struct of the object table.
	IncludeObjectRecord IncludeKey = "object_record"

	// IncludeObjectTransform is the per-camera ObjectTransform struct.
	IncludeObjectTransform IncludeKey = "object_transform"

	// IncludeBatchData is the BatchData uniform and its per-object range table.
	IncludeBatchData IncludeKey = "batch_data"

	// IncludeIndirectCall is the IndirectCall struct and the index packing helpers.
	IncludeIndirectCall IncludeKey = "indirect_call"

	// IncludeHiZSample is the HiZInfo struct and the pyramid sampling function.
	IncludeHiZSample IncludeKey = "hiz_sample"
)

// ErrUnknownInclude is returned when an include names a key with no registered source.
var ErrUnknownInclude = errors.New("shader: unknown include")

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	registry map[IncludeKey]string
	included []IncludeKey
}

// PreProcessor replaces //@oxy:include annotations with the registered WGSL source.
type PreProcessor interface {
	// Process expands every include in source. A key included more than once, directly or
	// through another include, is emitted only at its first site.
	//
	// Parameters:
	//   - source: raw WGSL with annotations
	//
	// Returns:
	//   - string: the expanded WGSL
	//   - error: ErrUnknownInclude for unregistered keys, or a malformed annotation error
	Process(source string) (string, error)

	// Includes returns the keys expanded by the last Process call in first-use order.
	//
	// Returns:
	//   - []IncludeKey: the expanded keys
	Includes() []IncludeKey
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a PreProcessor with every GPU struct of the cull pipeline registered.
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor
func NewPreProcessor() PreProcessor {
	return &preProcessor{
		registry: map[IncludeKey]string{
			IncludeCamera:          camera.GPUPerCameraUniformSource,
			IncludeObjectRecord:    game_object.GPUObjectSource,
			IncludeObjectTransform: transform.GPUObjectTransformSource,
			IncludeBatchData:       batch.GPUBatchSource,
			IncludeIndirectCall:    compaction.GPUIndirectCallSource,
			IncludeHiZSample:       hiz.GPUSampleSource,
		},
	}
}

// IncludeKeys lists every registered include key in sorted order.
//
// Returns:
//   - []IncludeKey: the registered keys
func IncludeKeys() []IncludeKey {
	pp := NewPreProcessor().(*preProcessor)
	keys := make([]IncludeKey, 0, len(pp.registry))
	for k := range pp.registry {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func (p *preProcessor) Process(source string) (string, error) {
	p.included = p.included[:0]
	seen := make(map[IncludeKey]bool)
	var out []string
	if err := p.expand(source, seen, &out); err != nil {
		return "", err
	}
	return strings.Join(out, "\n"), nil
}

func (p *preProcessor) Includes() []IncludeKey {
	return p.included
}

func (p *preProcessor) expand(source string, seen map[IncludeKey]bool, out *[]string) error {
	for i, line := range strings.Split(source, "\n") {
		key, ok, err := parseInclude(line, i+1)
		if err != nil {
			return err
		}
		if !ok {
			*out = append(*out, line)
			continue
		}
		if seen[key] {
			continue
		}
		src, found := p.registry[key]
		if !found {
			return fmt.Errorf("line %d: %w %q", i+1, ErrUnknownInclude, key)
		}
		seen[key] = true
		if err := p.expand(src, seen, out); err != nil {
			return fmt.Errorf("include %s: %w", key, err)
		}
		p.included = append(p.included, key)
	}
	return nil
}

// parseInclude reports the include key of an annotation line. Lines without the prefix are
// not annotations; any other annotation verb is an error.
func parseInclude(line string, lineNum int) (IncludeKey, bool, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "//") {
		return "", false, nil
	}
	_, after, ok := strings.Cut(trimmed, annotationPrefix)
	if !ok {
		return "", false, nil
	}
	args := strings.Fields(after)
	switch {
	case len(args) == 0:
		return "", false, fmt.Errorf("line %d: empty @oxy annotation", lineNum)
	case args[0] != "include":
		return "", false, fmt.Errorf("line %d: unknown @oxy annotation %q", lineNum, args[0])
	case len(args) != 2:
		return "", false, fmt.Errorf("line %d: @oxy:include takes exactly one key", lineNum)
	}
	return IncludeKey(args[1]), true, nil
}
