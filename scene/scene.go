package scene

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Material is the surface reflection model of a sphere.
type Material uint32

// Materials, numbered as in the scene file.
const (
	Diffuse Material = iota
	Specular
	Refractive
)

// String returns the string representation of Material.
func (m Material) String() string {
	switch m {
	case Diffuse:
		return "diffuse"
	case Specular:
		return "specular"
	case Refractive:
		return "refractive"
	default:
		return fmt.Sprintf("Material(%d)", uint32(m))
	}
}

// SphereWords is the number of 32-bit words in an encoded Sphere.
const SphereWords = 11

// Sphere is one scene object.
type Sphere struct {
	Radius   float32
	Position Vec
	Emission Vec
	Color    Vec
	Material Material
}

// Scene is the complete host state of the path tracer.
type Scene struct {
	Camera  Camera
	Spheres []Sphere

	selected int
}

// ParseError reports a malformed scene file. It is raised before any
// device work begins.
type ParseError struct {
	// Path is the file name, empty when parsing a reader.
	Path string

	// Line is the 1-based line number, 0 when the error is not tied to a line.
	Line int

	Reason string
}

func (e *ParseError) Error() string {
	loc := e.Path
	if loc == "" {
		loc = "scene"
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", loc, e.Line, e.Reason)
	}
	return fmt.Sprintf("%s: %s", loc, e.Reason)
}

// Load reads and parses the scene file at path.
func Load(path string) (*Scene, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("scene: %w", err)
	}
	defer f.Close()

	s, err := Parse(f)
	var pe *ParseError
	if errors.As(err, &pe) {
		pe.Path = path
	}
	return s, err
}

// Parse reads a scene from r. The camera basis is left for the caller to
// compute with Camera.Update once the image size is known.
func Parse(r io.Reader) (*Scene, error) {
	p := &parser{sc: bufio.NewScanner(r)}

	fields, err := p.record("camera", 7)
	if err != nil {
		return nil, err
	}
	vals, err := p.floats(fields[1:])
	if err != nil {
		return nil, err
	}
	s := &Scene{}
	s.Camera.Orig = Vec{vals[0], vals[1], vals[2]}
	s.Camera.Target = Vec{vals[3], vals[4], vals[5]}

	fields, err = p.record("size", 2)
	if err != nil {
		return nil, err
	}
	count, err := strconv.ParseUint(fields[1], 10, 31)
	if err != nil {
		return nil, p.errorf("invalid sphere count %q", fields[1])
	}
	if count == 0 {
		return nil, p.errorf("sphere count must be positive")
	}

	// The count is untrusted: grow with the records actually read.
	s.Spheres = make([]Sphere, 0, min(count, maxPrealloc))
	for i := 0; i < int(count); i++ {
		fields, err := p.record("sphere", 12)
		if err != nil {
			if p.eof {
				return nil, p.errorf("expected %d spheres, found %d", count, i)
			}
			return nil, err
		}
		v, err := p.floats(fields[1:11])
		if err != nil {
			return nil, err
		}
		m, err := strconv.ParseUint(fields[11], 10, 32)
		if err != nil || Material(m) > Refractive {
			return nil, p.errorf("unknown material %q for sphere #%d", fields[11], i)
		}
		s.Spheres = append(s.Spheres, Sphere{
			Radius:   v[0],
			Position: Vec{v[1], v[2], v[3]},
			Emission: Vec{v[4], v[5], v[6]},
			Color:    Vec{v[7], v[8], v[9]},
			Material: Material(m),
		})
	}

	if err := p.sc.Err(); err != nil {
		return nil, &ParseError{Reason: err.Error()}
	}
	return s, nil
}

// maxPrealloc bounds the sphere slice allocated before any record is read.
const maxPrealloc = 1024

type parser struct {
	sc   *bufio.Scanner
	line int
	eof  bool
}

func (p *parser) errorf(format string, args ...any) error {
	return &ParseError{Line: p.line, Reason: fmt.Sprintf(format, args...)}
}

// record reads the next non-blank line and checks its keyword and token
// count.
func (p *parser) record(keyword string, tokens int) ([]string, error) {
	for p.sc.Scan() {
		p.line++
		fields := strings.FieldsFunc(p.sc.Text(), func(r rune) bool {
			return r == ' ' || r == '\t' || r == '\r'
		})
		if len(fields) == 0 {
			continue
		}
		if fields[0] != keyword {
			return nil, p.errorf("expected %q record, found %q", keyword, fields[0])
		}
		if len(fields) != tokens {
			return nil, p.errorf("%s record has %d parameters, want %d", keyword, len(fields)-1, tokens-1)
		}
		return fields, nil
	}
	p.eof = true
	return nil, p.errorf("missing %s record", keyword)
}

func (p *parser) floats(tokens []string) ([]float32, error) {
	out := make([]float32, len(tokens))
	for i, tok := range tokens {
		f, err := strconv.ParseFloat(tok, 32)
		if err != nil {
			return nil, p.errorf("invalid number %q", tok)
		}
		out[i] = float32(f)
	}
	return out, nil
}

// WriteTo writes s in the scene file format.
func (s *Scene) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	c := s.Camera
	fmt.Fprintf(&b, "camera %g %g %g %g %g %g\n", c.Orig.X, c.Orig.Y, c.Orig.Z, c.Target.X, c.Target.Y, c.Target.Z)
	fmt.Fprintf(&b, "size %d\n", len(s.Spheres))
	for _, sp := range s.Spheres {
		fmt.Fprintf(&b, "sphere %g %g %g %g %g %g %g %g %g %g %d\n",
			sp.Radius,
			sp.Position.X, sp.Position.Y, sp.Position.Z,
			sp.Emission.X, sp.Emission.Y, sp.Emission.Z,
			sp.Color.X, sp.Color.Y, sp.Color.Z,
			uint32(sp.Material))
	}
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

// EncodeSpheres returns the device image of the sphere list.
func (s *Scene) EncodeSpheres() []byte {
	b := make([]byte, 0, len(s.Spheres)*SphereWords*4)
	for _, sp := range s.Spheres {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(sp.Radius))
		b = appendVec(b, sp.Position)
		b = appendVec(b, sp.Emission)
		b = appendVec(b, sp.Color)
		b = binary.LittleEndian.AppendUint32(b, uint32(sp.Material))
	}
	return b
}

// Selected returns the index of the sphere targeted by MoveSelected.
func (s *Scene) Selected() int { return s.selected }

// SelectNext selects the following sphere, wrapping around.
func (s *Scene) SelectNext() int {
	if n := len(s.Spheres); n > 0 {
		s.selected = (s.selected + 1) % n
	}
	return s.selected
}

// SelectPrev selects the preceding sphere, wrapping around.
func (s *Scene) SelectPrev() int {
	if n := len(s.Spheres); n > 0 {
		s.selected = (s.selected + n - 1) % n
	}
	return s.selected
}

// MoveSelected translates the selected sphere by d.
func (s *Scene) MoveSelected(d Vec) {
	if s.selected < len(s.Spheres) {
		sp := &s.Spheres[s.selected]
		sp.Position = sp.Position.Add(d)
	}
}
