package shader

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
)

// Binding describes one @group/@binding resource reflected from kernel source.
type Binding struct {
	// Group and Index are the @group and @binding numbers.
	Group int
	Index int

	// Name is the WGSL variable name.
	Name string

	// Type is the declared WGSL type, e.g. "array<ObjectRecord>".
	Type string

	// Entry is the layout entry handed to CreateBindGroupLayout. For buffers MinBindingSize holds
	// the struct size, or one element stride for runtime-sized arrays.
	Entry wgpu.BindGroupLayoutEntry

	// Runtime is true for runtime-sized arrays, whose buffers are sized by element count.
	Runtime bool
}

// Stride returns the element stride of a runtime-sized array binding, or the full size otherwise.
//
// Returns:
//   - uint64: bytes per element
func (b Binding) Stride() uint64 {
	return b.Entry.Buffer.MinBindingSize
}

// Writable reports whether the kernel may write the binding.
//
// Returns:
//   - bool: true for read_write storage buffers
func (b Binding) Writable() bool {
	return b.Entry.Buffer.Type == wgpu.BufferBindingTypeStorage
}

// wgslTypeLayout holds the byte size and alignment of a host-shareable WGSL type.
type wgslTypeLayout struct {
	size  uint64
	align uint64
}

type parsedField struct {
	name     string
	typeName string
}

type parsedStruct struct {
	name   string
	fields []parsedField
}

var (
	structBlockRegex   = regexp.MustCompile(`struct\s+(\w+)\s*\{([^}]*)\}`)
	fieldRegex         = regexp.MustCompile(`^(?:@\w+\([^)]*\)\s*)*(\w+)\s*:\s*(.+)$`)
	computeEntryRegex  = regexp.MustCompile(`(?s)@compute\b.*?\bfn\s+(\w+)`)
	workgroupSizeRegex = regexp.MustCompile(`@workgroup_size\(\s*(\d+)\s*(?:,\s*(\d+)\s*(?:,\s*(\d+)\s*)?)?\)`)

	// bindGroupDeclRegex captures group, binding, optional address space, name and type from
	// declarations like: @group(0) @binding(4) var<storage, read> objects: array<ObjectRecord>;
	bindGroupDeclRegex = regexp.MustCompile(`@group\((\d+)\)\s*@binding\((\d+)\)\s*var(?:<([^>]*)>)?\s+(\w+)\s*:\s*([^;]+?)\s*;`)
)

// parseBindings reflects every resource declaration of a compute kernel, sorted by group then
// binding. Buffer entries get MinBindingSize from the struct layouts found in the same source.
//
// Parameters:
//   - source: WGSL with includes already expanded
//
// Returns:
//   - []Binding: the reflected bindings
func parseBindings(source string) []Binding {
	cleaned := stripComments(source)
	known := computeStructSizes(parseStructBlocks(cleaned))

	var out []Binding
	for _, m := range bindGroupDeclRegex.FindAllStringSubmatch(cleaned, -1) {
		group, _ := strconv.Atoi(m[1])
		index, _ := strconv.Atoi(m[2])
		typeName := strings.TrimSpace(m[5])
		b := Binding{
			Group: group,
			Index: index,
			Name:  strings.TrimSpace(m[4]),
			Type:  typeName,
			Entry: classifyResource(uint32(index), wgpu.ShaderStageCompute, strings.TrimSpace(m[3]), typeName),
		}
		if b.Entry.Buffer.Type != wgpu.BufferBindingTypeUndefined {
			b.Runtime = isRuntimeArray(typeName)
			if layout, ok := resolveTypeLayout(typeName, known); ok {
				b.Entry.Buffer.MinBindingSize = layout.size
			}
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		return out[i].Index < out[j].Index
	})
	return out
}

// groupLayouts folds reflected bindings into one layout descriptor per group.
func groupLayouts(key string, bindings []Binding) map[int]wgpu.BindGroupLayoutDescriptor {
	out := make(map[int]wgpu.BindGroupLayoutDescriptor)
	for _, b := range bindings {
		desc := out[b.Group]
		desc.Label = key + " group " + strconv.Itoa(b.Group)
		desc.Entries = append(desc.Entries, b.Entry)
		out[b.Group] = desc
	}
	return out
}

// parseWorkgroupSize extracts @workgroup_size. Omitted dimensions are 1, and a kernel without
// the attribute reports [1, 1, 1].
//
// Parameters:
//   - source: WGSL source
//
// Returns:
//   - [3]uint32: the workgroup size as [x, y, z]
func parseWorkgroupSize(source string) [3]uint32 {
	result := [3]uint32{1, 1, 1}
	m := workgroupSizeRegex.FindStringSubmatch(stripComments(source))
	if m == nil {
		return result
	}
	for i := range result {
		if m[i+1] == "" {
			continue
		}
		if v, err := strconv.ParseUint(m[i+1], 10, 32); err == nil {
			result[i] = uint32(v)
		}
	}
	return result
}

// parseEntryPoint returns the name of the first @compute function, or "" if there is none.
func parseEntryPoint(source string) string {
	if m := computeEntryRegex.FindStringSubmatch(stripComments(source)); m != nil {
		return m[1]
	}
	return ""
}

func parseStructBlocks(source string) []parsedStruct {
	matches := structBlockRegex.FindAllStringSubmatch(source, -1)
	structs := make([]parsedStruct, 0, len(matches))
	for _, m := range matches {
		ps := parsedStruct{name: m[1]}
		for _, part := range splitAtTopLevelCommas(m[2]) {
			fm := fieldRegex.FindStringSubmatch(strings.TrimSpace(part))
			if fm == nil {
				continue
			}
			ps.fields = append(ps.fields, parsedField{name: fm[1], typeName: strings.TrimSpace(fm[2])})
		}
		structs = append(structs, ps)
	}
	return structs
}

func isRuntimeArray(typeName string) bool {
	inner, ok := strings.CutPrefix(typeName, "array<")
	if !ok {
		return false
	}
	return len(splitAtTopLevelCommas(strings.TrimSuffix(inner, ">"))) == 1
}
