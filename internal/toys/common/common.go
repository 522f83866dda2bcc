// Package common holds what the toy programs share: their options, kernel
// source selection and entry point resolution.
package common

import (
	"errors"
	"fmt"
	"os"

	"github.com/gogpu/toys"
	"github.com/gogpu/toys/backend"
	"github.com/gogpu/toys/internal/kernelsrc"
)

// Options are the plain configuration values a toy is built from.
type Options struct {
	Width, Height int

	// KernelPath replaces the embedded kernel source when set.
	KernelPath string

	// WorkGroupSize overrides the device-queried size when positive.
	WorkGroupSize int

	// Compile is passed to Session.Compile.
	Compile toys.CompileOptions

	// Budget tunes the adaptive pass count. The zero value selects the
	// toy's default.
	Budget toys.BudgetConfig

	// ExportPath is where the export key writes the image.
	ExportPath string
}

// Validate rejects a non-positive frame size or work-group size override.
func (o Options) Validate() error {
	if o.Width <= 0 || o.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", o.Width, o.Height)
	}
	if o.WorkGroupSize < 0 {
		return fmt.Errorf("invalid work-group size %d", o.WorkGroupSize)
	}
	return nil
}

// Sources are the embedded kernel sources of a toy, one per language.
type Sources struct {
	WGSL   []string
	OpenCL []string
}

// Select returns the sources to compile for s. A KernelPath is read and
// compiled first; the embedded sources of the driver's language follow so
// entry points the file lacks still resolve.
func Select(s *toys.Session, src Sources, kernelPath string) ([]string, error) {
	embedded := src.WGSL
	if s.Backend().Name() == backend.BackendOpenCL {
		embedded = src.OpenCL
	}
	if kernelPath == "" {
		return embedded, nil
	}
	data, err := os.ReadFile(kernelPath)
	if err != nil {
		return nil, fmt.Errorf("read kernel: %w", err)
	}
	return append([]string{string(data)}, embedded...), nil
}

// Compiled is a set of programs searched in order for entry points.
type Compiled struct {
	sources  []string
	programs []*toys.Program
}

// Compile builds the sources that declare at least one of entries. A
// source declaring none is skipped, as is an embedded source whose entry
// points an earlier source already provides.
func Compile(s *toys.Session, sources []string, opts toys.CompileOptions, entries ...string) (*Compiled, error) {
	c := &Compiled{}
	need := make(map[string]bool, len(entries))
	for _, e := range entries {
		need[e] = true
	}
	for _, src := range sources {
		provides := false
		for _, ep := range kernelsrc.EntryPoints(src) {
			if need[ep.Name] {
				provides = true
				need[ep.Name] = false
			}
		}
		if !provides {
			continue
		}
		p, err := s.Compile(src, opts)
		if err != nil {
			return nil, err
		}
		c.sources = append(c.sources, src)
		c.programs = append(c.programs, p)
	}
	return c, nil
}

// Resolve returns the entry point called name from the first program that
// declares it.
func (c *Compiled) Resolve(name string) (*toys.Kernel, error) {
	for i, p := range c.programs {
		if _, ok := kernelsrc.Lookup(c.sources[i], name); ok {
			return p.Resolve(name)
		}
	}
	return nil, &toys.SetupError{Op: "resolve kernel " + name, Err: errors.New("no source declares it")}
}

// Prepare resolves name and applies the work-group size override.
func (c *Compiled) Prepare(name string, wgSize int) (*toys.Kernel, error) {
	k, err := c.Resolve(name)
	if err != nil {
		return nil, err
	}
	if wgSize > 0 {
		if err := k.SetWorkGroupSize(wgSize); err != nil {
			return nil, err
		}
	} else if _, err := k.QueryWorkGroupSize(); err != nil {
		return nil, err
	}
	return k, nil
}
