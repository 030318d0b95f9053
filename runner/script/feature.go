package script

import (
	vk "github.com/goki/vulkan"
)

// featureTable maps script feature names to their VkPhysicalDeviceFeatures
// field. The table index is the bit position used by Script.RequiredFeatures.
var featureTable = []struct {
	name  string
	field func(*vk.PhysicalDeviceFeatures) *vk.Bool32
}{
	{"robustBufferAccess", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.RobustBufferAccess }},
	{"fullDrawIndexUint32", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.FullDrawIndexUint32 }},
	{"imageCubeArray", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.ImageCubeArray }},
	{"independentBlend", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.IndependentBlend }},
	{"geometryShader", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.GeometryShader }},
	{"tessellationShader", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.TessellationShader }},
	{"sampleRateShading", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.SampleRateShading }},
	{"dualSrcBlend", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.DualSrcBlend }},
	{"logicOp", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.LogicOp }},
	{"multiDrawIndirect", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.MultiDrawIndirect }},
	{"drawIndirectFirstInstance", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.DrawIndirectFirstInstance }},
	{"depthClamp", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.DepthClamp }},
	{"depthBiasClamp", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.DepthBiasClamp }},
	{"fillModeNonSolid", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.FillModeNonSolid }},
	{"depthBounds", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.DepthBounds }},
	{"wideLines", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.WideLines }},
	{"largePoints", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.LargePoints }},
	{"alphaToOne", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.AlphaToOne }},
	{"multiViewport", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.MultiViewport }},
	{"samplerAnisotropy", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.SamplerAnisotropy }},
	{"textureCompressionETC2", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.TextureCompressionETC2 }},
	{"textureCompressionASTC_LDR", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.TextureCompressionASTC_LDR }},
	{"textureCompressionBC", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.TextureCompressionBC }},
	{"occlusionQueryPrecise", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.OcclusionQueryPrecise }},
	{"pipelineStatisticsQuery", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.PipelineStatisticsQuery }},
	{"vertexPipelineStoresAndAtomics", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.VertexPipelineStoresAndAtomics }},
	{"fragmentStoresAndAtomics", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.FragmentStoresAndAtomics }},
	{"shaderTessellationAndGeometryPointSize", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.ShaderTessellationAndGeometryPointSize }},
	{"shaderImageGatherExtended", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.ShaderImageGatherExtended }},
	{"shaderStorageImageExtendedFormats", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.ShaderStorageImageExtendedFormats }},
	{"shaderStorageImageMultisample", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.ShaderStorageImageMultisample }},
	{"shaderStorageImageReadWithoutFormat", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.ShaderStorageImageReadWithoutFormat }},
	{"shaderStorageImageWriteWithoutFormat", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.ShaderStorageImageWriteWithoutFormat }},
	{"shaderUniformBufferArrayDynamicIndexing", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.ShaderUniformBufferArrayDynamicIndexing }},
	{"shaderSampledImageArrayDynamicIndexing", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.ShaderSampledImageArrayDynamicIndexing }},
	{"shaderStorageBufferArrayDynamicIndexing", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.ShaderStorageBufferArrayDynamicIndexing }},
	{"shaderStorageImageArrayDynamicIndexing", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.ShaderStorageImageArrayDynamicIndexing }},
	{"shaderClipDistance", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.ShaderClipDistance }},
	{"shaderCullDistance", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.ShaderCullDistance }},
	{"shaderFloat64", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.ShaderFloat64 }},
	{"shaderInt64", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.ShaderInt64 }},
	{"shaderInt16", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.ShaderInt16 }},
	{"shaderResourceResidency", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.ShaderResourceResidency }},
	{"shaderResourceMinLod", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.ShaderResourceMinLod }},
	{"sparseBinding", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.SparseBinding }},
	{"sparseResidencyBuffer", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.SparseResidencyBuffer }},
	{"sparseResidencyImage2D", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.SparseResidencyImage2D }},
	{"sparseResidencyImage3D", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.SparseResidencyImage3D }},
	{"sparseResidency2Samples", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.SparseResidency2Samples }},
	{"sparseResidency4Samples", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.SparseResidency4Samples }},
	{"sparseResidency8Samples", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.SparseResidency8Samples }},
	{"sparseResidency16Samples", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.SparseResidency16Samples }},
	{"sparseResidencyAliased", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.SparseResidencyAliased }},
	{"variableMultisampleRate", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.VariableMultisampleRate }},
	{"inheritedQueries", func(f *vk.PhysicalDeviceFeatures) *vk.Bool32 { return &f.InheritedQueries }},
}

// FeatureCount is the number of named device features.
func FeatureCount() int {
	return len(featureTable)
}

// LookupFeature returns the bit index of a feature name.
func LookupFeature(name string) (int, bool) {
	for i, f := range featureTable {
		if f.name == name {
			return i, true
		}
	}
	return 0, false
}

// FeatureName returns the script name of a feature bit.
func FeatureName(index int) string {
	return featureTable[index].name
}

// FeatureSet is the set of device features a script requires.
type FeatureSet struct {
	bits [2]uint64
}

func (s *FeatureSet) Add(index int) {
	s.bits[index/64] |= 1 << (index % 64)
}

func (s *FeatureSet) Has(index int) bool {
	return s.bits[index/64]&(1<<(index%64)) != 0
}

func (s *FeatureSet) Empty() bool {
	return s.bits[0] == 0 && s.bits[1] == 0
}

// Apply enables every required feature on a VkPhysicalDeviceFeatures to be
// passed at device creation.
func (s *FeatureSet) Apply(features *vk.PhysicalDeviceFeatures) {
	for i := range featureTable {
		if s.Has(i) {
			*featureTable[i].field(features) = vk.True
		}
	}
}

// MissingFrom returns the names of required features the device does not
// advertise.
func (s *FeatureSet) MissingFrom(have *vk.PhysicalDeviceFeatures) []string {
	var missing []string
	for i := range featureTable {
		if s.Has(i) && *featureTable[i].field(have) != vk.True {
			missing = append(missing, featureTable[i].name)
		}
	}
	return missing
}
