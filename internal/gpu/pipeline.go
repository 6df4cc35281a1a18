package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// QuadVertexLayout describes the vertex buffer: one float32x2 position at
// location 0, 8-byte stride, advanced per vertex.
func QuadVertexLayout() []gputypes.VertexBufferLayout {
	return []gputypes.VertexBufferLayout{
		{
			ArrayStride: VertexStride,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
			},
		},
	}
}

// Pipeline is the immutable render pipeline for the quad. It references
// exactly one bind group layout, at index 0.
type Pipeline struct {
	device hal.Device

	shader     hal.ShaderModule
	pipeLayout hal.PipelineLayout
	pipeline   hal.RenderPipeline

	format gputypes.TextureFormat
	info   *ShaderInfo
}

// NewPipeline checks source against the binding contract, compiles it and
// builds the render pipeline for a color target of format. There is no
// fallback shader: every failure is returned.
func NewPipeline(device hal.Device, contract *BindingContract, format gputypes.TextureFormat, source string) (*Pipeline, error) {
	info, err := ReflectShader(source)
	if err != nil {
		return nil, err
	}
	if err := info.CheckContract(); err != nil {
		return nil, err
	}

	p := &Pipeline{device: device, format: format, info: info}
	if err := p.create(contract, source); err != nil {
		p.Destroy()
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) create(contract *BindingContract, source string) error {
	shader, err := p.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "texquad_shader",
		Source: hal.ShaderSource{WGSL: source},
	})
	if err != nil {
		return fmt.Errorf("%w: create shader module: %w", ErrShaderCompile, err)
	}
	p.shader = shader

	pipeLayout, err := p.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "texquad_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{contract.Layout()},
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}
	p.pipeLayout = pipeLayout

	pipeline, err := p.device.CreateRenderPipeline(p.descriptor())
	if err != nil {
		return fmt.Errorf("create render pipeline: %w", err)
	}
	p.pipeline = pipeline

	slogger().Debug("gpu: render pipeline created", "format", p.format)
	return nil
}

func (p *Pipeline) descriptor() *hal.RenderPipelineDescriptor {
	return &hal.RenderPipelineDescriptor{
		Label:  "texquad_pipeline",
		Layout: p.pipeLayout,
		Vertex: hal.VertexState{
			Module:     p.shader,
			EntryPoint: VertexEntryPoint,
			Buffers:    QuadVertexLayout(),
		},
		Fragment: &hal.FragmentState{
			Module:     p.shader,
			EntryPoint: FragmentEntryPoint,
			Targets: []gputypes.ColorTargetState{
				{
					Format:    p.format,
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology:  gputypes.PrimitiveTopologyTriangleList,
			FrontFace: gputypes.FrontFaceCCW,
			CullMode:  gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	}
}

// Raw returns the HAL render pipeline.
func (p *Pipeline) Raw() hal.RenderPipeline { return p.pipeline }

// Format returns the color target format.
func (p *Pipeline) Format() gputypes.TextureFormat { return p.format }

// ShaderInfo returns the reflection data of the compiled shader.
func (p *Pipeline) ShaderInfo() *ShaderInfo { return p.info }

// Destroy releases the pipeline, its layout and the shader module.
func (p *Pipeline) Destroy() {
	if p.pipeline != nil {
		p.device.DestroyRenderPipeline(p.pipeline)
		p.pipeline = nil
	}
	if p.pipeLayout != nil {
		p.device.DestroyPipelineLayout(p.pipeLayout)
		p.pipeLayout = nil
	}
	if p.shader != nil {
		p.device.DestroyShaderModule(p.shader)
		p.shader = nil
	}
}
