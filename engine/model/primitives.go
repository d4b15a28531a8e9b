package model

// Cube returns an axis-aligned cube centered at the origin with the given half extent.
// Faces wind counter-clockwise when viewed from outside.
func Cube(halfExtent float32) Mesh {
	h := halfExtent
	faces := [6][4][3]float32{
		{{-h, -h, h}, {h, -h, h}, {h, h, h}, {-h, h, h}},     // +Z
		{{h, -h, -h}, {-h, -h, -h}, {-h, h, -h}, {h, h, -h}}, // -Z
		{{h, -h, h}, {h, -h, -h}, {h, h, -h}, {h, h, h}},     // +X
		{{-h, -h, -h}, {-h, -h, h}, {-h, h, h}, {-h, h, -h}}, // -X
		{{-h, h, h}, {h, h, h}, {h, h, -h}, {-h, h, -h}},     // +Y
		{{-h, -h, -h}, {h, -h, -h}, {h, -h, h}, {-h, -h, h}}, // -Y
	}
	normals := [6][3]float32{{0, 0, 1}, {0, 0, -1}, {1, 0, 0}, {-1, 0, 0}, {0, 1, 0}, {0, -1, 0}}
	uvs := [4][2]float32{{0, 1}, {1, 1}, {1, 0}, {0, 0}}

	m := Mesh{Name: "cube"}
	for f, face := range faces {
		base := uint32(len(m.Positions))
		for c, p := range face {
			m.Positions = append(m.Positions, p)
			m.Normals = append(m.Normals, normals[f])
			m.TexCoords = append(m.TexCoords, uvs[c])
		}
		m.Indices = append(m.Indices, base, base+1, base+2, base, base+2, base+3)
	}
	return m
}

// Grid returns a flat square grid in the XZ plane facing +Y, centered at the origin, made of
// cells*cells quads (two triangles each).
func Grid(size float32, cells int) Mesh {
	if cells < 1 {
		cells = 1
	}
	m := Mesh{Name: "grid"}
	step := size / float32(cells)
	half := size / 2
	row := uint32(cells + 1)
	for j := 0; j <= cells; j++ {
		for i := 0; i <= cells; i++ {
			m.Positions = append(m.Positions, [3]float32{-half + float32(i)*step, 0, -half + float32(j)*step})
			m.Normals = append(m.Normals, [3]float32{0, 1, 0})
			m.TexCoords = append(m.TexCoords, [2]float32{float32(i) / float32(cells), float32(j) / float32(cells)})
		}
	}
	for j := uint32(0); j < uint32(cells); j++ {
		for i := uint32(0); i < uint32(cells); i++ {
			v00 := j*row + i
			v10 := v00 + 1
			v01 := v00 + row
			v11 := v01 + 1
			m.Indices = append(m.Indices, v01, v11, v10, v01, v10, v00)
		}
	}
	return m
}
