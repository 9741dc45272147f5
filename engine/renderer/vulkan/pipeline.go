package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/renderer/driver"
)

// maxPushConstantRanges is bounded by the 128 bytes every device guarantees
// at 4-byte alignment.
const maxPushConstantRanges = 32

// VulkanPipeline holds a pipeline, its layout and the bind point it was
// built for.
type VulkanPipeline struct {
	context        *VulkanContext
	Handle         vk.Pipeline
	PipelineLayout vk.PipelineLayout
	BindPoint      vk.PipelineBindPoint
	label          string
}

func (d *VulkanDevice) newPipelineLayout(label string, setLayouts []driver.DescriptorSetLayout, pushConstants []driver.PushConstantRange) (vk.PipelineLayout, error) {
	if len(pushConstants) > maxPushConstantRanges {
		return nil, fmt.Errorf("pipeline %s: cannot have more than %d push constant ranges, got %d", label, maxPushConstantRanges, len(pushConstants))
	}
	layouts := make([]vk.DescriptorSetLayout, len(setLayouts))
	for i, l := range setLayouts {
		layouts[i] = l.(*VulkanDescriptorSetLayout).Handle
	}
	createInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(layouts)),
		PSetLayouts:    layouts,
	}
	if len(pushConstants) > 0 {
		ranges := make([]vk.PushConstantRange, len(pushConstants))
		for i, r := range pushConstants {
			ranges[i] = vk.PushConstantRange{
				StageFlags: toVkShaderStages(r.Stages),
				Offset:     r.Offset,
				Size:       r.Size,
			}
		}
		createInfo.PushConstantRangeCount = uint32(len(ranges))
		createInfo.PPushConstantRanges = ranges
	}

	var layout vk.PipelineLayout
	err := d.context.locks.SafeCall(PipelineManagement, func() error {
		return resultError("vkCreatePipelineLayout", vk.CreatePipelineLayout(d.LogicalDevice, &createInfo, d.context.Allocator, &layout))
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", label, err)
	}
	return layout, nil
}

// NewGraphicsPipeline builds a triangle list pipeline with dynamic viewport
// and scissor and no face culling.
func (d *VulkanDevice) NewGraphicsPipeline(desc driver.GraphicsPipelineDesc) (driver.Pipeline, error) {
	layout, err := d.newPipelineLayout(desc.Label, desc.SetLayouts, desc.PushConstants)
	if err != nil {
		return nil, err
	}

	stages := []vk.PipelineShaderStageCreateInfo{
		stageCreateInfo(desc.Vertex, vk.ShaderStageVertexBit),
		stageCreateInfo(desc.Fragment, vk.ShaderStageFragmentBit),
	}

	bindings := make([]vk.VertexInputBindingDescription, len(desc.VertexBindings))
	for i, b := range desc.VertexBindings {
		rate := vk.VertexInputRateVertex
		if b.Rate == driver.RatePerInstance {
			rate = vk.VertexInputRateInstance
		}
		bindings[i] = vk.VertexInputBindingDescription{
			Binding:   b.Binding,
			Stride:    b.Stride,
			InputRate: rate,
		}
	}
	attributes := make([]vk.VertexInputAttributeDescription, len(desc.VertexAttributes))
	for i, a := range desc.VertexAttributes {
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: a.Location,
			Binding:  a.Binding,
			Format:   toVkFormat(a.Format),
			Offset:   a.Offset,
		}
	}
	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	// Viewport and scissor are set per frame.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                vk.CullModeFlags(vk.CullModeNone),
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
	}

	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:   vk.False,
		RasterizationSamples:  vk.SampleCount1Bit,
		MinSampleShading:      1.0,
		AlphaToCoverageEnable: vk.False,
		AlphaToOneEnable:      vk.False,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vk.False,
		DepthWriteEnable:  vk.False,
		StencilTestEnable: vk.False,
	}
	if desc.DepthTest {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthWriteEnable = vk.True
		depthStencil.DepthCompareOp = vk.CompareOpLessOrEqual
	}

	blendAttachment := vk.PipelineColorBlendAttachmentState{
		BlendEnable: vk.False,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
			vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
	}
	if desc.AlphaBlend {
		blendAttachment.BlendEnable = vk.True
		blendAttachment.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		blendAttachment.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		blendAttachment.ColorBlendOp = vk.BlendOpAdd
		blendAttachment.SrcAlphaBlendFactor = vk.BlendFactorOne
		blendAttachment.DstAlphaBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		blendAttachment.AlphaBlendOp = vk.BlendOpAdd
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{blendAttachment},
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	createInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamicState,
		Layout:              layout,
		RenderPass:          desc.RenderPass.(*VulkanRenderpass).Handle,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	err = d.context.locks.SafeCall(PipelineManagement, func() error {
		return resultError("vkCreateGraphicsPipelines",
			vk.CreateGraphicsPipelines(d.LogicalDevice, vk.NullPipelineCache, 1, []vk.GraphicsPipelineCreateInfo{createInfo}, d.context.Allocator, pipelines))
	})
	if err != nil {
		vk.DestroyPipelineLayout(d.LogicalDevice, layout, d.context.Allocator)
		return nil, fmt.Errorf("pipeline %s: %w", desc.Label, err)
	}

	d.context.logger.Debug("graphics pipeline created", "label", desc.Label)
	return &VulkanPipeline{
		context:        d.context,
		Handle:         pipelines[0],
		PipelineLayout: layout,
		BindPoint:      vk.PipelineBindPointGraphics,
		label:          desc.Label,
	}, nil
}

func (d *VulkanDevice) NewComputePipeline(desc driver.ComputePipelineDesc) (driver.Pipeline, error) {
	layout, err := d.newPipelineLayout(desc.Label, desc.SetLayouts, desc.PushConstants)
	if err != nil {
		return nil, err
	}
	createInfo := vk.ComputePipelineCreateInfo{
		SType:              vk.StructureTypeComputePipelineCreateInfo,
		Stage:              stageCreateInfo(desc.Compute, vk.ShaderStageComputeBit),
		Layout:             layout,
		BasePipelineHandle: vk.NullPipeline,
		BasePipelineIndex:  -1,
	}
	pipelines := make([]vk.Pipeline, 1)
	err = d.context.locks.SafeCall(PipelineManagement, func() error {
		return resultError("vkCreateComputePipelines",
			vk.CreateComputePipelines(d.LogicalDevice, vk.NullPipelineCache, 1, []vk.ComputePipelineCreateInfo{createInfo}, d.context.Allocator, pipelines))
	})
	if err != nil {
		vk.DestroyPipelineLayout(d.LogicalDevice, layout, d.context.Allocator)
		return nil, fmt.Errorf("pipeline %s: %w", desc.Label, err)
	}

	d.context.logger.Debug("compute pipeline created", "label", desc.Label)
	return &VulkanPipeline{
		context:        d.context,
		Handle:         pipelines[0],
		PipelineLayout: layout,
		BindPoint:      vk.PipelineBindPointCompute,
		label:          desc.Label,
	}, nil
}

func (p *VulkanPipeline) Label() string {
	return p.label
}

func (p *VulkanPipeline) Destroy() {
	device := p.context.Device.LogicalDevice
	_ = p.context.locks.SafeCall(PipelineManagement, func() error {
		if p.Handle != nil {
			vk.DestroyPipeline(device, p.Handle, p.context.Allocator)
			p.Handle = nil
		}
		if p.PipelineLayout != nil {
			vk.DestroyPipelineLayout(device, p.PipelineLayout, p.context.Allocator)
			p.PipelineLayout = nil
		}
		return nil
	})
}
