// Package kernelsrc prepares kernel source text for the compute drivers.
//
// It expands #include directives, injects build-time definitions and finds
// the entry points a source declares. WGSL and OpenCL C are recognized.
package kernelsrc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Language is a kernel source language.
type Language int

// Supported languages.
const (
	WGSL Language = iota
	OpenCLC
)

// String returns the string representation of Language.
func (l Language) String() string {
	switch l {
	case WGSL:
		return "WGSL"
	case OpenCLC:
		return "OpenCL C"
	default:
		return fmt.Sprintf("Unknown(%d)", int(l))
	}
}

// maxIncludeDepth bounds nested #include expansion.
const maxIncludeDepth = 16

var (
	// ErrIncludeNotFound is returned when an included file is not found on
	// any include path.
	ErrIncludeNotFound = errors.New("kernelsrc: include not found")

	// ErrIncludeCycle is returned when includes recurse into themselves.
	ErrIncludeCycle = errors.New("kernelsrc: include cycle")

	// ErrNoEntryPoint is returned by WithWorkGroupSize for an unknown entry.
	ErrNoEntryPoint = errors.New("kernelsrc: entry point not found")
)

var (
	wgslEntryRe   = regexp.MustCompile(`((?:@[A-Za-z_]\w*\s*(?:\([^)]*\))?\s*)+)fn\s+([A-Za-z_]\w*)`)
	wgslWGSizeRe  = regexp.MustCompile(`@workgroup_size\s*\(\s*(\d+)[^)]*\)`)
	openclEntryRe = regexp.MustCompile(`\b(?:__kernel|kernel)\s+(?:__attribute__\s*\(\(\s*reqd_work_group_size\s*\(\s*(\d+)[^)]*\)\s*\)\)\s*)?void\s+([A-Za-z_]\w*)\s*\(`)
	openclHintRe  = regexp.MustCompile(`\b__kernel\b|\bkernel\s+void\b`)
	defineNameRe  = regexp.MustCompile(`^[A-Za-z_]\w*$`)
)

// Detect guesses the language of src.
func Detect(src string) Language {
	if openclHintRe.MatchString(stripComments(src)) {
		return OpenCLC
	}
	return WGSL
}

// EntryPoint is a kernel declared in a source.
type EntryPoint struct {
	Name string

	// WorkGroupSize is the declared work-group size, or 0 when the source
	// leaves it to the dispatcher.
	WorkGroupSize int
}

// EntryPoints returns the compute entry points of src in declaration order.
// Declarations inside comments are ignored.
func EntryPoints(src string) []EntryPoint {
	clean := stripComments(src)
	if Detect(src) == OpenCLC {
		var eps []EntryPoint
		for _, m := range openclEntryRe.FindAllStringSubmatch(clean, -1) {
			size, _ := strconv.Atoi(m[1])
			eps = append(eps, EntryPoint{Name: m[2], WorkGroupSize: size})
		}
		return eps
	}

	var eps []EntryPoint
	for _, m := range wgslEntryRe.FindAllStringSubmatch(clean, -1) {
		attrs := m[1]
		if !strings.Contains(attrs, "@compute") {
			continue
		}
		ep := EntryPoint{Name: m[2]}
		if wg := wgslWGSizeRe.FindStringSubmatch(attrs); wg != nil {
			ep.WorkGroupSize, _ = strconv.Atoi(wg[1])
		}
		eps = append(eps, ep)
	}
	return eps
}

// Lookup returns the entry point called name.
func Lookup(src, name string) (EntryPoint, bool) {
	for _, ep := range EntryPoints(src) {
		if ep.Name == name {
			return ep, true
		}
	}
	return EntryPoint{}, false
}

// WithWorkGroupSize rewrites the @workgroup_size attribute of the WGSL entry
// point called entry to size. An entry without the attribute gets one.
func WithWorkGroupSize(src, entry string, size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("kernelsrc: invalid work-group size %d", size)
	}
	clean := stripComments(src)
	for _, loc := range wgslEntryRe.FindAllStringSubmatchIndex(clean, -1) {
		attrStart, attrEnd := loc[2], loc[3]
		if clean[loc[4]:loc[5]] != entry || !strings.Contains(clean[attrStart:attrEnd], "@compute") {
			continue
		}
		attr := fmt.Sprintf("@workgroup_size(%d)", size)
		attrs := clean[attrStart:attrEnd]
		if wg := wgslWGSizeRe.FindStringIndex(attrs); wg != nil {
			return src[:attrStart+wg[0]] + attr + src[attrStart+wg[1]:], nil
		}
		return src[:attrEnd] + attr + " " + src[attrEnd:], nil
	}
	return "", fmt.Errorf("%w: %q", ErrNoEntryPoint, entry)
}

// Options configures Preprocess.
type Options struct {
	// IncludePaths are searched in order for #include "file" directives.
	// The directory of the including file is not searched implicitly.
	IncludePaths []string

	// Defines are injected at the top of the source, as #define lines for
	// OpenCL C and as const declarations for WGSL.
	Defines map[string]string

	// ReadFile loads include files. Defaults to os.ReadFile.
	ReadFile func(name string) ([]byte, error)
}

// Preprocess expands the #include directives of src and injects defines.
// OpenCL compilers resolve includes themselves, so callers targeting OpenCL
// usually pass the include paths to the compiler instead.
func Preprocess(src string, opts Options) (string, error) {
	if opts.ReadFile == nil {
		opts.ReadFile = os.ReadFile
	}
	lang := Detect(src)

	out, err := expand(src, opts, nil)
	if err != nil {
		return "", err
	}
	if len(opts.Defines) == 0 {
		return out, nil
	}

	names := make([]string, 0, len(opts.Defines))
	for name := range opts.Defines {
		if !defineNameRe.MatchString(name) {
			return "", fmt.Errorf("kernelsrc: invalid define name %q", name)
		}
		names = append(names, name)
	}
	slices.Sort(names)

	var b strings.Builder
	for _, name := range names {
		value := opts.Defines[name]
		switch lang {
		case OpenCLC:
			fmt.Fprintf(&b, "#define %s %s\n", name, value)
		default:
			if value == "" {
				value = "true"
			}
			fmt.Fprintf(&b, "const %s = %s;\n", name, value)
		}
	}
	b.WriteString(out)
	return b.String(), nil
}

func expand(src string, opts Options, stack []string) (string, error) {
	if len(stack) > maxIncludeDepth {
		return "", fmt.Errorf("%w: depth exceeds %d", ErrIncludeCycle, maxIncludeDepth)
	}

	lines := strings.Split(src, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		name, ok := includeTarget(lines[i])
		if !ok {
			continue
		}
		path, body, err := resolve(name, opts)
		if err != nil {
			return "", err
		}
		if slices.Contains(stack, path) {
			return "", fmt.Errorf("%w: %s", ErrIncludeCycle, strings.Join(append(stack, path), " -> "))
		}
		inner, err := expand(string(body), opts, append(stack, path))
		if err != nil {
			return "", err
		}
		lines[i] = "// " + strings.TrimSpace(lines[i]) + "\n" + inner
	}
	return strings.Join(lines, "\n"), nil
}

func includeTarget(line string) (string, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(line), "#include")
	if !ok {
		return "", false
	}
	rest = strings.TrimSpace(rest)
	if len(rest) < 2 || rest[0] != '"' {
		return "", false
	}
	name, _, ok := strings.Cut(rest[1:], `"`)
	return name, ok && name != ""
}

func resolve(name string, opts Options) (string, []byte, error) {
	if filepath.IsAbs(name) {
		b, err := opts.ReadFile(name)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %s: %w", ErrIncludeNotFound, name, err)
		}
		return name, b, nil
	}
	for _, dir := range opts.IncludePaths {
		path := filepath.Join(dir, name)
		if b, err := opts.ReadFile(path); err == nil {
			return path, b, nil
		}
	}
	return "", nil, fmt.Errorf("%w: %q (searched %v)", ErrIncludeNotFound, name, opts.IncludePaths)
}

// stripComments blanks // and /* */ comments while keeping every byte
// offset and newline in place.
func stripComments(src string) string {
	b := []byte(src)
	for i := 0; i < len(b); i++ {
		switch {
		case b[i] == '/' && i+1 < len(b) && b[i+1] == '/':
			for ; i < len(b) && b[i] != '\n'; i++ {
				b[i] = ' '
			}
		case b[i] == '/' && i+1 < len(b) && b[i+1] == '*':
			b[i], b[i+1] = ' ', ' '
			i += 2
			for ; i < len(b); i++ {
				if b[i] == '*' && i+1 < len(b) && b[i+1] == '/' {
					b[i], b[i+1] = ' ', ' '
					i++
					break
				}
				if b[i] != '\n' {
					b[i] = ' '
				}
			}
		}
	}
	return string(b)
}
