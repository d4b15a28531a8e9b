package material

// MaterialBuilderOption is a function that configures a material's surface during construction.
// Options do not depend on the texture profile.
type MaterialBuilderOption func(*properties)

// WithName is an option builder that sets the name of the material.
//
// Parameters:
//   - name: the identifier for the material
//
// Returns:
//   - MaterialBuilderOption: a function that applies the name option to a material
func WithName(name string) MaterialBuilderOption {
	return func(p *properties) {
		p.name = name
	}
}

// WithBaseColor is an option builder that sets the albedo RGBA color of the material.
//
// Parameters:
//   - color: the base color as RGBA float32 values
//
// Returns:
//   - MaterialBuilderOption: a function that applies the base color option to a material
func WithBaseColor(color [4]float32) MaterialBuilderOption {
	return func(p *properties) {
		p.baseColor = color
	}
}

// WithMetallic is an option builder that sets the metallic factor of the material.
//
// Parameters:
//   - metallic: the metallic factor (0.0 = dielectric, 1.0 = metal)
//
// Returns:
//   - MaterialBuilderOption: a function that applies the metallic option to a material
func WithMetallic(metallic float32) MaterialBuilderOption {
	return func(p *properties) {
		p.metallic = metallic
	}
}

// WithRoughness is an option builder that sets the roughness factor of the material.
//
// Parameters:
//   - roughness: the roughness factor (0.0 = smooth, 1.0 = rough)
//
// Returns:
//   - MaterialBuilderOption: a function that applies the roughness option to a material
func WithRoughness(roughness float32) MaterialBuilderOption {
	return func(p *properties) {
		p.roughness = roughness
	}
}

// WithTextureSlot is an option builder that selects the profile slot holding the albedo texture.
//
// Parameters:
//   - slot: the texture slot
//
// Returns:
//   - MaterialBuilderOption: a function that applies the slot option to a material
func WithTextureSlot(slot uint32) MaterialBuilderOption {
	return func(p *properties) {
		p.textureSlot = slot
	}
}
