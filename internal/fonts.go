package internal

import (
	"fmt"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
)

// FontSet hands out faces at physical point sizes, parsing the configured
// font file once. Without a font file every size falls back to the
// builtin bitmap face, which keeps the renderers usable headless.
type FontSet struct {
	source *opentype.Font
	faces  map[float64]font.Face
}

// LoadFontSet reads and parses an OpenType/TrueType font file. An empty
// path yields a FontSet that serves the builtin fallback face.
func LoadFontSet(path string) (*FontSet, error) {
	fs := &FontSet{faces: make(map[float64]font.Face)}
	if path == "" {
		return fs, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read font file: %v", err)
	}

	parsed, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font file %s: %v", path, err)
	}
	fs.source = parsed

	return fs, nil
}

// Face returns a face at the given physical point size.
func (f *FontSet) Face(points float64) font.Face {
	if f.source == nil {
		return basicfont.Face7x13
	}
	if face, ok := f.faces[points]; ok {
		return face
	}

	face, err := opentype.NewFace(f.source, &opentype.FaceOptions{
		Size:    points,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		Error("Failed to create %gpt font face: %v", points, err)
		return basicfont.Face7x13
	}

	f.faces[points] = face
	return face
}
