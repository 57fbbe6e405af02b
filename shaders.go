package learngpu

import (
	_ "embed"
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
)

// Embedded WGSL shader sources.
// These are compiled at build time using go:embed directives.

//go:embed shaders/triangle.wgsl
var triangleShaderSource string

// Shader entry point names, matching shaders/triangle.wgsl.
const (
	vertexEntryPoint   = "vs_main"
	fragmentEntryPoint = "fs_main"
)

// triangleVertexCount is the number of vertices in the hard-coded triangle.
// One draw of exactly this count is recorded per frame.
const triangleVertexCount = 3

// triangleVertex is the CPU mirror of the vertex table in
// shaders/triangle.wgsl: clip-space position for a vertex index in [0,3).
// Kept in lockstep with the shader so tests can pin the geometry without
// a GPU.
func triangleVertex(idx uint32) [4]float32 {
	positions := [triangleVertexCount][2]float32{
		{0.0, 0.5},
		{-0.5, -0.5},
		{0.5, -0.5},
	}
	p := positions[idx]
	return [4]float32{p[0], p[1], 0.0, 1.0}
}

// triangleFragmentColor is the CPU mirror of the fragment output in
// shaders/triangle.wgsl: opaque red for every covered pixel.
var triangleFragmentColor = [4]float32{1.0, 0.0, 0.0, 1.0}

// validateShader parses, lowers, and validates a WGSL source and checks
// that the expected entry points are present with the expected stages.
// Used at test time; the HAL backend performs its own compilation when
// the shader module is created.
func validateShader(source string, entries map[string]ir.ShaderStage) error {
	ast, err := naga.Parse(source)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return fmt.Errorf("lower: %w", err)
	}
	verrs, err := naga.Validate(module)
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	if len(verrs) > 0 {
		return fmt.Errorf("validate: %d errors, first: %s", len(verrs), verrs[0].Error())
	}

	found := make(map[string]ir.ShaderStage, len(module.EntryPoints))
	for _, ep := range module.EntryPoints {
		found[ep.Name] = ep.Stage
	}
	for name, stage := range entries {
		got, ok := found[name]
		if !ok {
			return fmt.Errorf("entry point %q not found", name)
		}
		if got != stage {
			return fmt.Errorf("entry point %q has stage %v, want %v", name, got, stage)
		}
	}
	return nil
}
