package shader

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-cull/engine/cull/compaction"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/hiz"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/transform"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/visibility"
)

// KernelKey names one of the built-in cull kernels.
type KernelKey string

const (
	KernelTransformUpdate KernelKey = "transform_update"
	KernelTriangleCull    KernelKey = "triangle_cull"
	KernelObjectCull      KernelKey = "object_cull"
	KernelPrefixScan      KernelKey = "prefix_scan"
	KernelObjectCompact   KernelKey = "object_compact"
	KernelHiZReduce       KernelKey = "hiz_reduce"
)

var kernelSources = map[KernelKey]string{
	KernelTransformUpdate: transform.GPUTransformUpdateSource,
	KernelTriangleCull:    visibility.GPUTriangleCullSource,
	KernelObjectCull:      visibility.GPUObjectCullSource,
	KernelPrefixScan:      compaction.GPUPrefixScanSource,
	KernelObjectCompact:   compaction.GPUObjectCompactSource,
	KernelHiZReduce:       hiz.GPUReduceSource,
}

var (
	kernelMu    sync.Mutex
	kernelCache = make(map[KernelKey]Shader)
)

// KernelKeys lists the built-in kernels in dispatch order.
//
// Returns:
//   - []KernelKey: every kernel key
func KernelKeys() []KernelKey {
	return []KernelKey{
		KernelTransformUpdate,
		KernelObjectCull,
		KernelPrefixScan,
		KernelObjectCompact,
		KernelTriangleCull,
		KernelHiZReduce,
	}
}

// Kernel returns the parsed built-in kernel for key. Kernels are parsed once and shared.
//
// Parameters:
//   - key: the kernel key
//
// Returns:
//   - Shader: the parsed kernel
//   - error: if the key is unknown or the source fails to pre-process
func Kernel(key KernelKey) (Shader, error) {
	kernelMu.Lock()
	defer kernelMu.Unlock()

	if s, ok := kernelCache[key]; ok {
		return s, nil
	}
	src, ok := kernelSources[key]
	if !ok {
		return nil, fmt.Errorf("shader: unknown kernel %q", key)
	}
	s, err := NewShader(string(key), src)
	if err != nil {
		return nil, err
	}
	kernelCache[key] = s
	return s, nil
}

// ValidateKernels parses the given built-in kernels and checks them with naga, without a device.
//
// Parameters:
//   - keys: the kernels to check; none means every kernel
//
// Returns:
//   - error: an unknown-key error, or ErrValidation from Validate
func ValidateKernels(keys ...KernelKey) error {
	if len(keys) == 0 {
		keys = KernelKeys()
	}
	shaders := make([]Shader, 0, len(keys))
	for _, key := range keys {
		s, err := Kernel(key)
		if err != nil {
			return err
		}
		shaders = append(shaders, s)
	}
	return Validate(shaders...)
}
