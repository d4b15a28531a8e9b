package shader

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gogpu/naga"
)

var (
	// ErrNoEntryPoint is returned for sources without a @compute function.
	ErrNoEntryPoint = errors.New("shader: no @compute entry point")
	// ErrValidation is returned when naga rejects a shader.
	ErrValidation = errors.New("shader: validation failed")
)

// shader is the implementation of the Shader interface.
type shader struct {
	key           string
	source        string
	entryPoint    string
	workGroupSize [3]uint32
	bindings      []Binding
	layouts       map[int]wgpu.BindGroupLayoutDescriptor
	includes      []IncludeKey
	module        *wgpu.ShaderModuleDescriptor
}

// Shader is a pre-processed compute kernel together with the bind group layouts reflected from
// its declarations. Everything the backend needs to build a compute pipeline is derived from
// the source at construction.
type Shader interface {
	// Key retrieves the unique identifier of the kernel.
	//
	// Returns:
	//   - string: the kernel key
	Key() string

	// Source retrieves the WGSL after include expansion.
	//
	// Returns:
	//   - string: the expanded WGSL source
	Source() string

	// EntryPoint returns the name of the @compute function.
	//
	// Returns:
	//   - string: the entry point name
	EntryPoint() string

	// WorkgroupSize returns the @workgroup_size dimensions, [1, 1, 1] when omitted.
	//
	// Returns:
	//   - [3]uint32: the workgroup size as [x, y, z]
	WorkgroupSize() [3]uint32

	// Bindings returns every reflected resource sorted by group then binding.
	//
	// Returns:
	//   - []Binding: the reflected bindings
	Bindings() []Binding

	// Binding looks up a resource by its WGSL variable name.
	//
	// Parameters:
	//   - name: the variable name, e.g. "objects"
	//
	// Returns:
	//   - Binding: the reflected binding
	//   - bool: false if no declaration has that name
	Binding(name string) (Binding, bool)

	// Groups returns the bind group indices the kernel declares, ascending.
	//
	// Returns:
	//   - []int: the group indices
	Groups() []int

	// BindGroupLayoutDescriptor retrieves the layout of one group.
	//
	// Parameters:
	//   - group: the group index
	//
	// Returns:
	//   - wgpu.BindGroupLayoutDescriptor: the descriptor, empty if the group is not declared
	BindGroupLayoutDescriptor(group int) wgpu.BindGroupLayoutDescriptor

	// BindGroupLayoutDescriptors retrieves all group layouts keyed by group index.
	//
	// Returns:
	//   - map[int]wgpu.BindGroupLayoutDescriptor: the descriptors
	BindGroupLayoutDescriptors() map[int]wgpu.BindGroupLayoutDescriptor

	// Includes returns the include keys expanded into the source.
	//
	// Returns:
	//   - []IncludeKey: the expanded keys in first-use order
	Includes() []IncludeKey

	// Module returns the WGSL shader module descriptor.
	//
	// Returns:
	//   - *wgpu.ShaderModuleDescriptor: descriptor labelled with the kernel key
	Module() *wgpu.ShaderModuleDescriptor

	// CompileSPIRV translates the expanded source to SPIR-V with naga, for backends that take
	// binary modules and for validating kernels without a device.
	//
	// Returns:
	//   - []byte: little-endian SPIR-V words
	//   - error: the naga error wrapped with the kernel key
	CompileSPIRV() ([]byte, error)
}

var _ Shader = &shader{}

// NewShader expands includes, then reflects the entry point, workgroup size and bindings.
//
// Parameters:
//   - key: a unique identifier used as the module and layout label
//   - source: raw WGSL, which may carry //@oxy:include annotations
//
// Returns:
//   - Shader: the parsed kernel
//   - error: an include error, or ErrNoEntryPoint
func NewShader(key, source string) (Shader, error) {
	pp := NewPreProcessor()
	expanded, err := pp.Process(source)
	if err != nil {
		return nil, fmt.Errorf("shader %s: %w", key, err)
	}
	s := &shader{
		key:           key,
		source:        expanded,
		entryPoint:    parseEntryPoint(expanded),
		workGroupSize: parseWorkgroupSize(expanded),
		bindings:      parseBindings(expanded),
		includes:      append([]IncludeKey(nil), pp.Includes()...),
	}
	if s.entryPoint == "" {
		return nil, fmt.Errorf("shader %s: %w", key, ErrNoEntryPoint)
	}
	s.layouts = groupLayouts(key, s.bindings)
	s.module = &wgpu.ShaderModuleDescriptor{
		Label:          key,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: expanded},
	}
	return s, nil
}

// MustShader is NewShader for the built-in kernels, which are embedded and cannot fail at
// runtime without a programming error.
//
// Parameters:
//   - key: the kernel key
//   - source: raw WGSL
//
// Returns:
//   - Shader: the parsed kernel
func MustShader(key, source string) Shader {
	s, err := NewShader(key, source)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *shader) Key() string {
	return s.key
}

func (s *shader) Source() string {
	return s.source
}

func (s *shader) EntryPoint() string {
	return s.entryPoint
}

func (s *shader) WorkgroupSize() [3]uint32 {
	return s.workGroupSize
}

func (s *shader) Bindings() []Binding {
	return s.bindings
}

func (s *shader) Binding(name string) (Binding, bool) {
	for _, b := range s.bindings {
		if b.Name == name {
			return b, true
		}
	}
	return Binding{}, false
}

func (s *shader) Groups() []int {
	groups := make([]int, 0, len(s.layouts))
	for g := range s.layouts {
		groups = append(groups, g)
	}
	sort.Ints(groups)
	return groups
}

func (s *shader) BindGroupLayoutDescriptor(group int) wgpu.BindGroupLayoutDescriptor {
	return s.layouts[group]
}

func (s *shader) BindGroupLayoutDescriptors() map[int]wgpu.BindGroupLayoutDescriptor {
	return s.layouts
}

func (s *shader) Includes() []IncludeKey {
	return s.includes
}

func (s *shader) Module() *wgpu.ShaderModuleDescriptor {
	return s.module
}

func (s *shader) CompileSPIRV() ([]byte, error) {
	spirv, err := naga.Compile(s.source)
	if err != nil {
		return nil, fmt.Errorf("shader %s: %w", s.key, err)
	}
	return spirv, nil
}

// Validate compiles every shader with naga and reports the first rejection.
//
// Parameters:
//   - shaders: the shaders to check
//
// Returns:
//   - error: ErrValidation wrapping the naga error of the first failing shader
func Validate(shaders ...Shader) error {
	for _, s := range shaders {
		if _, err := s.CompileSPIRV(); err != nil {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
	}
	return nil
}
