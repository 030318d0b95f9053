package vulkan

import (
	"errors"
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkrun/runner/core"
	"github.com/spaghettifunk/vkrun/runner/script"
)

// ErrUnsupported marks a script whose requirements no available device can
// satisfy. The runner reports it as a skip rather than a failure.
var ErrUnsupported = errors.New("script requirements not supported by any device")

// NewContext brings up an instance and a logical device satisfying the
// script's [require] section: Vulkan version, device features and
// extensions, plus a graphics+compute queue.
func NewContext(scr *script.Script) (*VulkanContext, error) {
	if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return nil, fmt.Errorf("loading the Vulkan loader: %w", err)
	}
	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("initialising Vulkan: %w", err)
	}

	ctx := &VulkanContext{}

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   SafeString("vkrun"),
		ApplicationVersion: vk.MakeVersion(0, 1, 0),
		PEngineName:        SafeString("vkrun"),
		ApiVersion:         uint32(vk.MakeVersion(scr.VulkanVersion[0], scr.VulkanVersion[1], 0)),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}
	if res := vk.CreateInstance(&createInfo, ctx.Allocator, &ctx.Instance); res != vk.Success {
		return nil, &core.VulkanError{Object: "instance", Result: int32(res)}
	}
	vk.InitInstance(ctx.Instance)

	if err := selectPhysicalDevice(ctx, scr); err != nil {
		ctx.Destroy()
		return nil, err
	}
	if err := createLogicalDevice(ctx, scr); err != nil {
		ctx.Destroy()
		return nil, err
	}

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(ctx.Device.QueueIndex),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(ctx.Device.LogicalDevice, &poolCreateInfo, ctx.Allocator, &pool); res != vk.Success {
		ctx.Destroy()
		return nil, &core.VulkanError{Object: "command pool", Result: int32(res)}
	}
	ctx.CommandPool = pool
	return ctx, nil
}

// deviceQueueIndex finds a queue family with graphics and compute support.
func deviceQueueIndex(device vk.PhysicalDevice) int32 {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &count, nil)
	if count == 0 {
		return -1
	}
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &count, families)
	want := vk.QueueFlags(vk.QueueGraphicsBit) | vk.QueueFlags(vk.QueueComputeBit)
	for i := uint32(0); i < count; i++ {
		families[i].Deref()
		if families[i].QueueFlags&want == want {
			return int32(i)
		}
	}
	return -1
}

// deviceHasExtensions checks the script's required extension names against
// what the device advertises.
func deviceHasExtensions(device vk.PhysicalDevice, required []string) (bool, error) {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, nil); !ResultIsSuccess(res) {
		return false, &core.VulkanError{Object: "extension enumeration", Result: int32(res)}
	}
	available := make(map[string]bool, count)
	if count != 0 {
		props := make([]vk.ExtensionProperties, count)
		if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, props); !ResultIsSuccess(res) {
			return false, &core.VulkanError{Object: "extension enumeration", Result: int32(res)}
		}
		for i := range props {
			props[i].Deref()
			available[byteArrayString(props[i].ExtensionName[:])] = true
		}
	}
	for _, name := range required {
		if !available[name] {
			return false, nil
		}
	}
	return true, nil
}

func selectPhysicalDevice(ctx *VulkanContext, scr *script.Script) error {
	var count uint32
	if res := vk.EnumeratePhysicalDevices(ctx.Instance, &count, nil); !ResultIsSuccess(res) {
		return &core.VulkanError{Object: "physical device enumeration", Result: int32(res)}
	}
	if count == 0 {
		return fmt.Errorf("%w: no Vulkan devices", ErrUnsupported)
	}
	devices := make([]vk.PhysicalDevice, count)
	if res := vk.EnumeratePhysicalDevices(ctx.Instance, &count, devices); !ResultIsSuccess(res) {
		return &core.VulkanError{Object: "physical device enumeration", Result: int32(res)}
	}

	wantVersion := uint32(vk.MakeVersion(scr.VulkanVersion[0], scr.VulkanVersion[1], 0))
	for _, device := range devices {
		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(device, &properties)
		properties.Deref()
		if properties.ApiVersion < wantVersion {
			continue
		}

		var features vk.PhysicalDeviceFeatures
		vk.GetPhysicalDeviceFeatures(device, &features)
		features.Deref()
		if missing := scr.RequiredFeatures.MissingFrom(&features); len(missing) > 0 {
			core.LogDebug("device %s is missing features %v", byteArrayString(properties.DeviceName[:]), missing)
			continue
		}

		ok, err := deviceHasExtensions(device, scr.Extensions)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		queueIndex := deviceQueueIndex(device)
		if queueIndex < 0 {
			continue
		}

		var memory vk.PhysicalDeviceMemoryProperties
		vk.GetPhysicalDeviceMemoryProperties(device, &memory)
		memory.Deref()

		ctx.Device.PhysicalDevice = device
		ctx.Device.Properties = properties
		ctx.Device.Features = features
		ctx.Device.Memory = memory
		ctx.Device.QueueIndex = queueIndex
		core.LogInfo("Selected device: '%s'", byteArrayString(properties.DeviceName[:]))
		return nil
	}
	return fmt.Errorf("%w: no device satisfies the script requirements", ErrUnsupported)
}

func createLogicalDevice(ctx *VulkanContext, scr *script.Script) error {
	queuePriority := float32(1.0)
	queueCreateInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: uint32(ctx.Device.QueueIndex),
		QueueCount:       1,
		PQueuePriorities: []float32{queuePriority},
	}}

	var enabledFeatures vk.PhysicalDeviceFeatures
	scr.RequiredFeatures.Apply(&enabledFeatures)

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    1,
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{enabledFeatures},
		EnabledExtensionCount:   uint32(len(scr.Extensions)),
		PpEnabledExtensionNames: SafeStrings(append([]string(nil), scr.Extensions...)),
	}

	var device vk.Device
	if res := vk.CreateDevice(ctx.Device.PhysicalDevice, &deviceCreateInfo, ctx.Allocator, &device); !ResultIsSuccess(res) {
		return &core.VulkanError{Object: "device", Result: int32(res)}
	}
	ctx.Device.LogicalDevice = device

	var queue vk.Queue
	vk.GetDeviceQueue(ctx.Device.LogicalDevice, uint32(ctx.Device.QueueIndex), 0, &queue)
	ctx.Device.Queue = queue
	return nil
}
