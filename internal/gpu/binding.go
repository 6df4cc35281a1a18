package gpu

import (
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Binding slots shared by the host and the shader, all in group 0.
const (
	BindingUniforms uint32 = 0
	BindingTexture  uint32 = 1
	BindingSampler  uint32 = 2
)

// LayoutEntries returns the bind group layout schema:
// uniforms (vertex+fragment), texture (fragment), sampler (fragment).
func LayoutEntries() []gputypes.BindGroupLayoutEntry {
	return []gputypes.BindGroupLayoutEntry{
		{
			Binding:    BindingUniforms,
			Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
			Buffer: &gputypes.BufferBindingLayout{
				Type:           gputypes.BufferBindingTypeUniform,
				MinBindingSize: UniformSize,
			},
		},
		{
			Binding:    BindingTexture,
			Visibility: gputypes.ShaderStageFragment,
			Texture: &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			},
		},
		{
			Binding:    BindingSampler,
			Visibility: gputypes.ShaderStageFragment,
			Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
		},
	}
}

// BindingEntry is one resource bound to a slot of the bind group.
type BindingEntry = gputypes.BindGroupEntry

// bindingKind names the resource class a slot holds.
type bindingKind string

const (
	kindBuffer  bindingKind = "buffer"
	kindTexture bindingKind = "texture"
	kindSampler bindingKind = "sampler"
	kindUnknown bindingKind = "unknown"
)

func layoutKind(e gputypes.BindGroupLayoutEntry) bindingKind {
	switch {
	case e.Buffer != nil:
		return kindBuffer
	case e.Texture != nil:
		return kindTexture
	case e.Sampler != nil:
		return kindSampler
	default:
		return kindUnknown
	}
}

func resourceKind(r gputypes.BindingResource) bindingKind {
	switch r.(type) {
	case gputypes.BufferBinding:
		return kindBuffer
	case gputypes.TextureViewBinding:
		return kindTexture
	case gputypes.SamplerBinding:
		return kindSampler
	default:
		return kindUnknown
	}
}

// ValidateEntries checks that entries provide every layout slot exactly
// once, with a resource of the declared kind, and nothing else. Order does
// not matter.
func ValidateEntries(layout []gputypes.BindGroupLayoutEntry, entries []BindingEntry) error {
	declared := make(map[uint32]bindingKind, len(layout))
	for _, l := range layout {
		declared[l.Binding] = layoutKind(l)
	}

	seen := make(map[uint32]bool, len(entries))
	for _, e := range entries {
		want, ok := declared[e.Binding]
		if !ok {
			return fmt.Errorf("%w: slot %d is not declared", ErrBindingMismatch, e.Binding)
		}
		if seen[e.Binding] {
			return fmt.Errorf("%w: slot %d bound twice", ErrBindingMismatch, e.Binding)
		}
		seen[e.Binding] = true
		if got := resourceKind(e.Resource); got != want {
			return fmt.Errorf("%w: slot %d holds a %s, layout declares a %s", ErrBindingMismatch, e.Binding, got, want)
		}
	}

	var missing []uint32
	for slot := range declared {
		if !seen[slot] {
			missing = append(missing, slot)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("%w: missing slots %v", ErrBindingMismatch, missing)
	}
	return nil
}

// BindingContract owns the bind group layout and the one bind group built
// from a ResourceSet. The group is never rebuilt: the uniform buffer is
// updated in place, so its identity stays valid.
type BindingContract struct {
	device  hal.Device
	entries []gputypes.BindGroupLayoutEntry
	layout  hal.BindGroupLayout
	group   hal.BindGroup
}

// NewBindingContract declares the layout and binds res to it.
func NewBindingContract(device hal.Device, res *ResourceSet) (*BindingContract, error) {
	c := &BindingContract{device: device, entries: LayoutEntries()}

	layout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "texquad_bind_layout",
		Entries: c.entries,
	})
	if err != nil {
		return nil, fmt.Errorf("create bind group layout: %w", err)
	}
	c.layout = layout

	group, err := c.CreateGroup("texquad_bind_group", ResourceEntries(res))
	if err != nil {
		c.Destroy()
		return nil, err
	}
	c.group = group
	return c, nil
}

// ResourceEntries binds the uniform buffer, texture view and sampler of res
// to their slots.
func ResourceEntries(res *ResourceSet) []BindingEntry {
	return []BindingEntry{
		{
			Binding:  BindingUniforms,
			Resource: gputypes.BufferBinding{Buffer: res.UniformBuffer().NativeHandle(), Offset: 0, Size: UniformSize},
		},
		{
			Binding:  BindingTexture,
			Resource: gputypes.TextureViewBinding{TextureView: res.TextureView().NativeHandle()},
		},
		{
			Binding:  BindingSampler,
			Resource: gputypes.SamplerBinding{Sampler: res.Sampler().NativeHandle()},
		},
	}
}

// CreateGroup validates entries against the layout and creates a bind
// group. A missing, duplicate, extra or mistyped slot fails here rather
// than at draw time.
func (c *BindingContract) CreateGroup(label string, entries []BindingEntry) (hal.BindGroup, error) {
	if err := ValidateEntries(c.entries, entries); err != nil {
		return nil, err
	}
	group, err := c.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   label,
		Layout:  c.layout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("create bind group: %w", err)
	}
	return group, nil
}

// Layout returns the bind group layout used at group index 0.
func (c *BindingContract) Layout() hal.BindGroupLayout { return c.layout }

// Group returns the bind group.
func (c *BindingContract) Group() hal.BindGroup { return c.group }

// Entries returns a copy of the declared layout entries.
func (c *BindingContract) Entries() []gputypes.BindGroupLayoutEntry {
	return slices.Clone(c.entries)
}

// Destroy releases the group and the layout.
func (c *BindingContract) Destroy() {
	if c.group != nil {
		c.device.DestroyBindGroup(c.group)
		c.group = nil
	}
	if c.layout != nil {
		c.device.DestroyBindGroupLayout(c.layout)
		c.layout = nil
	}
}
