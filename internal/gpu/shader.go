package gpu

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
)

//go:embed shaders/quad.wgsl
var quadShaderSource string

// DefaultShaderSource returns the embedded quad shader.
func DefaultShaderSource() string { return quadShaderSource }

// Entry point names the pipeline is built around.
const (
	VertexEntryPoint   = "vs_main"
	FragmentEntryPoint = "fs_main"
)

// ResourceKind is the class of a shader resource binding.
type ResourceKind int

// Resource kinds recognised by reflection.
const (
	ResourceOther ResourceKind = iota
	ResourceUniform
	ResourceTexture
	ResourceSampler
)

func (k ResourceKind) String() string {
	switch k {
	case ResourceUniform:
		return "uniform"
	case ResourceTexture:
		return "texture"
	case ResourceSampler:
		return "sampler"
	default:
		return "other"
	}
}

// ShaderBinding is one @group/@binding resource declared by a shader.
type ShaderBinding struct {
	Name    string
	Group   uint32
	Binding uint32
	Kind    ResourceKind
	// Size is the byte size of uniform blocks, zero for opaque resources.
	Size uint32
}

// ShaderInfo is what reflection learned about a WGSL module.
type ShaderInfo struct {
	VertexEntries   []string
	FragmentEntries []string
	Bindings        []ShaderBinding
	// VertexInputs maps @location to component count for the vertex entry
	// point's float vector inputs.
	VertexInputs map[uint32]int
}

// ReflectShader parses, lowers and validates WGSL and reports its entry
// points and resource bindings. Compiler diagnostics are wrapped in
// ErrShaderCompile.
func ReflectShader(source string) (*ShaderInfo, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrShaderCompile, err)
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrShaderCompile, err)
	}
	verrs, err := naga.Validate(module)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrShaderCompile, err)
	}
	if len(verrs) > 0 {
		msgs := make([]string, len(verrs))
		for i, ve := range verrs {
			msgs[i] = ve.Error()
		}
		return nil, fmt.Errorf("%w: %s", ErrShaderCompile, strings.Join(msgs, "; "))
	}

	info := &ShaderInfo{VertexInputs: map[uint32]int{}}
	for _, ep := range module.EntryPoints {
		switch ep.Stage {
		case ir.StageVertex:
			info.VertexEntries = append(info.VertexEntries, ep.Name)
			if ep.Name == VertexEntryPoint {
				collectVertexInputs(module, ep.Function.Arguments, info.VertexInputs)
			}
		case ir.StageFragment:
			info.FragmentEntries = append(info.FragmentEntries, ep.Name)
		}
	}

	for _, gv := range module.GlobalVariables {
		if gv.Binding == nil {
			continue
		}
		b := ShaderBinding{
			Name:    gv.Name,
			Group:   gv.Binding.Group,
			Binding: gv.Binding.Binding,
			Kind:    globalKind(module, gv),
		}
		if b.Kind == ResourceUniform {
			b.Size = ir.TypeSize(module, gv.Type)
		}
		info.Bindings = append(info.Bindings, b)
	}
	sort.Slice(info.Bindings, func(i, j int) bool {
		if info.Bindings[i].Group != info.Bindings[j].Group {
			return info.Bindings[i].Group < info.Bindings[j].Group
		}
		return info.Bindings[i].Binding < info.Bindings[j].Binding
	})
	return info, nil
}

func globalKind(module *ir.Module, gv ir.GlobalVariable) ResourceKind {
	if gv.Space == ir.SpaceUniform {
		return ResourceUniform
	}
	if int(gv.Type) >= len(module.Types) {
		return ResourceOther
	}
	switch module.Types[gv.Type].Inner.(type) {
	case ir.ImageType:
		return ResourceTexture
	case ir.SamplerType:
		return ResourceSampler
	default:
		return ResourceOther
	}
}

// collectVertexInputs records @location float vector arguments, looking
// through struct arguments.
func collectVertexInputs(module *ir.Module, args []ir.FunctionArgument, out map[uint32]int) {
	for _, arg := range args {
		if arg.Binding != nil {
			if loc, ok := (*arg.Binding).(ir.LocationBinding); ok {
				out[loc.Location] = floatComponents(module, arg.Type)
			}
			continue
		}
		if int(arg.Type) >= len(module.Types) {
			continue
		}
		st, ok := module.Types[arg.Type].Inner.(ir.StructType)
		if !ok {
			continue
		}
		for _, m := range st.Members {
			if m.Binding == nil {
				continue
			}
			if loc, ok := (*m.Binding).(ir.LocationBinding); ok {
				out[loc.Location] = floatComponents(module, m.Type)
			}
		}
	}
}

func floatComponents(module *ir.Module, h ir.TypeHandle) int {
	if int(h) >= len(module.Types) {
		return 0
	}
	switch t := module.Types[h].Inner.(type) {
	case ir.ScalarType:
		if t.Kind == ir.ScalarFloat {
			return 1
		}
	case ir.VectorType:
		if t.Scalar.Kind == ir.ScalarFloat {
			return int(t.Size)
		}
	}
	return 0
}

// Binding returns the resource at group/binding, if declared.
func (s *ShaderInfo) Binding(group, binding uint32) (ShaderBinding, bool) {
	for _, b := range s.Bindings {
		if b.Group == group && b.Binding == binding {
			return b, true
		}
	}
	return ShaderBinding{}, false
}

// CheckContract verifies the shader exposes vs_main and fs_main, takes a
// float32x2 position at location 0, and declares exactly the group 0
// resources the host binds: a 16-byte uniform block, a texture and a
// sampler. All violations are reported together.
func (s *ShaderInfo) CheckContract() error {
	var errs []error

	if !contains(s.VertexEntries, VertexEntryPoint) {
		errs = append(errs, fmt.Errorf("missing @vertex fn %s", VertexEntryPoint))
	} else if n := s.VertexInputs[0]; n != 2 {
		errs = append(errs, fmt.Errorf("%s: @location(0) has %d float components, want 2", VertexEntryPoint, n))
	}
	if !contains(s.FragmentEntries, FragmentEntryPoint) {
		errs = append(errs, fmt.Errorf("missing @fragment fn %s", FragmentEntryPoint))
	}

	want := []struct {
		binding uint32
		kind    ResourceKind
	}{
		{BindingUniforms, ResourceUniform},
		{BindingTexture, ResourceTexture},
		{BindingSampler, ResourceSampler},
	}
	for _, w := range want {
		b, ok := s.Binding(0, w.binding)
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("missing %s at @group(0) @binding(%d)", w.kind, w.binding))
		case b.Kind != w.kind:
			errs = append(errs, fmt.Errorf("@group(0) @binding(%d) %q is a %s, want %s", w.binding, b.Name, b.Kind, w.kind))
		case w.kind == ResourceUniform && b.Size != UniformSize:
			errs = append(errs, fmt.Errorf("uniform block %q is %d bytes, want %d", b.Name, b.Size, UniformSize))
		}
	}
	for _, b := range s.Bindings {
		if b.Group != 0 || b.Binding > BindingSampler {
			errs = append(errs, fmt.Errorf("undeclared resource %q at @group(%d) @binding(%d)", b.Name, b.Group, b.Binding))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrShaderContract, errors.Join(errs...))
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
