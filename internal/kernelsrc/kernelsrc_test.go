package kernelsrc

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
)

const wgslSource = `
@group(0) @binding(0) var<storage, read_write> out: array<u32>;

// @compute @workgroup_size(8)
// fn commented(@builtin(global_invocation_id) gid: vec3<u32>) {}

@compute @workgroup_size(64)
fn mandelGPU(@builtin(global_invocation_id) gid: vec3<u32>) {
	out[gid.x] = 1u;
}

fn helper(x: u32) -> u32 { return x; }

@compute
fn noSize(@builtin(global_invocation_id) gid: vec3<u32>) {}
`

const openclSource = `
/* __kernel void hidden(void) {} */
__kernel void SmallPTGPU(__global float *samples, const int width) {}
__kernel __attribute__((reqd_work_group_size(32, 1, 1))) void ToneMapping(__global float *s) {}
static float helper(float x) { return x; }
`

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want Language
	}{
		{"wgsl", wgslSource, WGSL},
		{"opencl", openclSource, OpenCLC},
		{"opencl short form", "kernel void k(global int *a) {}", OpenCLC},
		{"comment only", "// __kernel void x()\n@compute fn y() {}", WGSL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.src); got != tt.want {
				t.Errorf("Detect() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEntryPointsWGSL(t *testing.T) {
	eps := EntryPoints(wgslSource)
	want := []EntryPoint{
		{Name: "mandelGPU", WorkGroupSize: 64},
		{Name: "noSize", WorkGroupSize: 0},
	}
	if len(eps) != len(want) {
		t.Fatalf("EntryPoints() = %+v, want %+v", eps, want)
	}
	for i := range want {
		if eps[i] != want[i] {
			t.Errorf("EntryPoints()[%d] = %+v, want %+v", i, eps[i], want[i])
		}
	}
}

func TestEntryPointsOpenCL(t *testing.T) {
	eps := EntryPoints(openclSource)
	want := []EntryPoint{
		{Name: "SmallPTGPU"},
		{Name: "ToneMapping", WorkGroupSize: 32},
	}
	if len(eps) != len(want) {
		t.Fatalf("EntryPoints() = %+v, want %+v", eps, want)
	}
	for i := range want {
		if eps[i] != want[i] {
			t.Errorf("EntryPoints()[%d] = %+v, want %+v", i, eps[i], want[i])
		}
	}
}

func TestLookup(t *testing.T) {
	if _, ok := Lookup(wgslSource, "helper"); ok {
		t.Error("Lookup(helper) found a non-compute function")
	}
	ep, ok := Lookup(wgslSource, "mandelGPU")
	if !ok || ep.WorkGroupSize != 64 {
		t.Errorf("Lookup(mandelGPU) = %+v, %v", ep, ok)
	}
}

func TestWithWorkGroupSize(t *testing.T) {
	out, err := WithWorkGroupSize(wgslSource, "mandelGPU", 128)
	if err != nil {
		t.Fatalf("WithWorkGroupSize() error = %v", err)
	}
	ep, _ := Lookup(out, "mandelGPU")
	if ep.WorkGroupSize != 128 {
		t.Errorf("rewritten size = %d, want 128", ep.WorkGroupSize)
	}
	// The commented-out declaration keeps its text.
	if !strings.Contains(out, "// @compute @workgroup_size(8)") {
		t.Error("comment was rewritten")
	}

	out, err = WithWorkGroupSize(wgslSource, "noSize", 16)
	if err != nil {
		t.Fatalf("WithWorkGroupSize(noSize) error = %v", err)
	}
	if ep, _ := Lookup(out, "noSize"); ep.WorkGroupSize != 16 {
		t.Errorf("inserted size = %d, want 16", ep.WorkGroupSize)
	}

	if _, err := WithWorkGroupSize(wgslSource, "missing", 16); !errors.Is(err, ErrNoEntryPoint) {
		t.Errorf("WithWorkGroupSize(missing) error = %v, want ErrNoEntryPoint", err)
	}
	if _, err := WithWorkGroupSize(wgslSource, "mandelGPU", 0); err == nil {
		t.Error("WithWorkGroupSize(0) error = nil")
	}
}

func memFS(files map[string]string) func(string) ([]byte, error) {
	return func(name string) ([]byte, error) {
		if s, ok := files[filepath.ToSlash(name)]; ok {
			return []byte(s), nil
		}
		return nil, fs.ErrNotExist
	}
}

func TestPreprocessIncludes(t *testing.T) {
	files := map[string]string{
		"lib/geom.wgsl": "#include \"vec.wgsl\"\nfn geom() {}",
		"inc/vec.wgsl":  "fn vec() {}",
	}
	src := "#include \"geom.wgsl\"\n@compute @workgroup_size(1) fn main() {}"

	out, err := Preprocess(src, Options{
		IncludePaths: []string{"lib", "inc"},
		ReadFile:     memFS(files),
	})
	if err != nil {
		t.Fatalf("Preprocess() error = %v", err)
	}
	for _, want := range []string{"fn vec() {}", "fn geom() {}", `// #include "geom.wgsl"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "fn vec()") > strings.Index(out, "fn geom()") {
		t.Error("nested include expanded after its includer")
	}
}

func TestPreprocessErrors(t *testing.T) {
	files := map[string]string{
		"a.wgsl": "#include \"b.wgsl\"",
		"b.wgsl": "#include \"a.wgsl\"",
	}
	_, err := Preprocess(`#include "a.wgsl"`, Options{IncludePaths: []string{"."}, ReadFile: memFS(files)})
	if !errors.Is(err, ErrIncludeCycle) {
		t.Errorf("cycle error = %v, want ErrIncludeCycle", err)
	}

	_, err = Preprocess(`#include "missing.wgsl"`, Options{IncludePaths: []string{"."}, ReadFile: memFS(files)})
	if !errors.Is(err, ErrIncludeNotFound) {
		t.Errorf("missing error = %v, want ErrIncludeNotFound", err)
	}
}

func TestPreprocessDefines(t *testing.T) {
	out, err := Preprocess("@compute fn k() {}", Options{
		Defines: map[string]string{"SAMPLES": "4u", "FAST": ""},
	})
	if err != nil {
		t.Fatalf("Preprocess() error = %v", err)
	}
	if !strings.HasPrefix(out, "const FAST = true;\nconst SAMPLES = 4u;\n") {
		t.Errorf("WGSL defines not injected in order:\n%s", out)
	}

	out, err = Preprocess(openclSource, Options{Defines: map[string]string{"PARAM_MAX_DEPTH": "6"}})
	if err != nil {
		t.Fatalf("Preprocess(opencl) error = %v", err)
	}
	if !strings.HasPrefix(out, "#define PARAM_MAX_DEPTH 6\n") {
		t.Errorf("OpenCL define missing:\n%s", out)
	}

	if _, err := Preprocess("x", Options{Defines: map[string]string{"1bad": ""}}); err == nil {
		t.Error("invalid define name accepted")
	}
}
