package material

// properties holds the surface values shared by every profile.
type properties struct {
	name        string
	baseColor   [4]float32
	metallic    float32
	roughness   float32
	textureSlot uint32
}

// material is the implementation of the Material interface.
type material[P TextureProfile] struct {
	properties
	profile P
}

// Material defines a surface and the texture profile it samples through. The profile is a type
// parameter, so a Material[BindlessProfile] and a Material[BoundTextureProfile] are different
// types and never branch on the profile at draw time.
type Material[P TextureProfile] interface {
	// Name retrieves the material identifier.
	//
	// Returns:
	//   - string: the name of the material
	Name() string

	// BaseColor retrieves the albedo RGBA color of the material.
	//
	// Returns:
	//   - [4]float32: the base color as RGBA values
	BaseColor() [4]float32

	// Metallic retrieves the metallic factor of the material.
	// A value of 0.0 represents a dielectric surface, 1.0 represents a fully metallic surface.
	//
	// Returns:
	//   - float32: the metallic factor
	Metallic() float32

	// Roughness retrieves the roughness factor of the material.
	// A value of 0.0 represents a perfectly smooth surface, 1.0 represents a fully rough surface.
	//
	// Returns:
	//   - float32: the roughness factor
	Roughness() float32

	// TextureSlot retrieves the profile slot the material's albedo texture lives in.
	//
	// Returns:
	//   - uint32: the slot
	TextureSlot() uint32

	// Profile retrieves the texture profile.
	//
	// Returns:
	//   - P: the profile
	Profile() P

	// Textured reports whether the profile has a texture at the material's slot.
	//
	// Returns:
	//   - bool: true when ColorAt samples a texture
	Textured() bool

	// ColorAt returns the albedo at (u, v): the base color, modulated by the texture when one is
	// bound at the material's slot.
	//
	// Parameters:
	//   - u, v: texture coordinates
	//
	// Returns:
	//   - [4]float32: RGBA in [0, 1]
	ColorAt(u, v float32) [4]float32

	// Params returns the record the shading stage reads for this material.
	//
	// Returns:
	//   - GPUMaterialParams: the GPU record
	Params() GPUMaterialParams
}

var (
	_ Material[BindlessProfile]     = &material[BindlessProfile]{}
	_ Material[BoundTextureProfile] = &material[BoundTextureProfile]{}
)

// NewMaterial creates a new Material sampling through profile, configured with the provided
// options.
//
// Parameters:
//   - profile: the texture profile
//   - options: variadic list of MaterialBuilderOption functions to configure the material
//
// Returns:
//   - Material[P]: a new Material instance
func NewMaterial[P TextureProfile](profile P, options ...MaterialBuilderOption) Material[P] {
	m := &material[P]{
		properties: properties{
			baseColor: [4]float32{1, 1, 1, 1},
			metallic:  0.0,
			roughness: 1.0,
		},
		profile: profile,
	}
	for _, opt := range options {
		opt(&m.properties)
	}
	return m
}

func (m *material[P]) Name() string {
	return m.name
}

func (m *material[P]) BaseColor() [4]float32 {
	return m.baseColor
}

func (m *material[P]) Metallic() float32 {
	return m.metallic
}

func (m *material[P]) Roughness() float32 {
	return m.roughness
}

func (m *material[P]) TextureSlot() uint32 {
	return m.textureSlot
}

func (m *material[P]) Profile() P {
	return m.profile
}

func (m *material[P]) Textured() bool {
	return m.profile.HasTexture(m.textureSlot)
}

func (m *material[P]) ColorAt(u, v float32) [4]float32 {
	c := m.baseColor
	if !m.Textured() {
		return c
	}
	t := m.profile.SampleTexture(m.textureSlot, u, v)
	for i := range c {
		c[i] *= t[i]
	}
	return c
}

func (m *material[P]) Params() GPUMaterialParams {
	p := GPUMaterialParams{
		BaseColor:   m.baseColor,
		Metallic:    m.metallic,
		Roughness:   m.roughness,
		TextureSlot: m.textureSlot,
	}
	if m.Textured() {
		p.Flags |= FlagTextured
	}
	return p
}

// Library is an indexed set of materials sharing one profile, addressed by the MaterialIndex of
// the object table.
type Library[P TextureProfile] struct {
	materials []Material[P]
	fallback  [4]float32
}

// NewLibrary creates a library. Indices without a material resolve to fallback.
func NewLibrary[P TextureProfile](fallback [4]float32, materials ...Material[P]) *Library[P] {
	return &Library[P]{materials: materials, fallback: fallback}
}

// Len returns the number of materials.
func (l *Library[P]) Len() int {
	return len(l.materials)
}

// At returns the material at index, or nil.
func (l *Library[P]) At(index uint32) Material[P] {
	if int(index) >= len(l.materials) {
		return nil
	}
	return l.materials[index]
}

// Color returns the albedo at the texture center of the material at index.
func (l *Library[P]) Color(index uint32) [4]float32 {
	m := l.At(index)
	if m == nil {
		return l.fallback
	}
	return m.ColorAt(0.5, 0.5)
}

// MarshalParams serializes every material's GPUMaterialParams in index order.
//
// Returns:
//   - []byte: Len()*32 bytes
func (l *Library[P]) MarshalParams() []byte {
	buf := make([]byte, 0, len(l.materials)*GPUMaterialParamsSize)
	for _, m := range l.materials {
		p := m.Params()
		buf = append(buf, p.Marshal()...)
	}
	return buf
}
