package shader

// SPIR-V opcodes, decorations and enums used by reflection, as defined by
// Khronos in spirv.core.grammar.json.
const (
	magicNumber = 0x07230203
	headerWords = 5

	opName           = 5
	opMemberName     = 6
	opEntryPoint     = 15
	opExecutionMode  = 16
	opCapability     = 17
	opTypeVoid       = 19
	opTypeBool       = 20
	opTypeInt        = 21
	opTypeFloat      = 22
	opTypeVector     = 23
	opTypeMatrix     = 24
	opTypeImage      = 25
	opTypeSampler    = 26
	opTypeSampledImg = 27
	opTypeArray      = 28
	opTypeRuntimeArr = 29
	opTypeStruct     = 30
	opTypePointer    = 32
	opTypeFunction   = 33
	opConstant       = 43
	opFunction       = 54
	opVariable       = 59
	opDecorate       = 71
	opMemberDecorate = 72

	execModelVertex    = 0
	execModelFragment  = 4
	execModelGLCompute = 5

	execModeLocalSize = 17

	decorationBlock         = 2
	decorationBufferBlock   = 3
	decorationArrayStride   = 6
	decorationBuiltIn       = 11
	decorationNonWritable   = 24
	decorationLocation      = 30
	decorationBinding       = 33
	decorationDescriptorSet = 34
	decorationOffset        = 35

	storageUniformConstant = 0
	storageInput           = 1
	storageUniform         = 2
	storageOutput          = 3
	storagePushConstant    = 9
	storageStorageBuffer   = 12
)
