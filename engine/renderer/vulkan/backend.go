// Package vulkan implements the driver interfaces on top of Vulkan.
package vulkan

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/charmbracelet/log"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/driver"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

var (
	_ driver.Backend       = (*VulkanBackend)(nil)
	_ driver.Device        = (*VulkanDevice)(nil)
	_ driver.CommandBuffer = (*VulkanCommandBuffer)(nil)
	_ driver.Swapchain     = (*VulkanSwapchain)(nil)
)

// VulkanBackend opens Vulkan devices. The loader entry point comes from the
// windowing layer.
type VulkanBackend struct {
	procAddr unsafe.Pointer
	debug    bool
	logger   *log.Logger
}

type Option func(*VulkanBackend)

// WithValidation enables the Khronos validation layer and routes its
// reports to the logger.
func WithValidation(enabled bool) Option {
	return func(b *VulkanBackend) {
		b.debug = enabled
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(b *VulkanBackend) {
		b.logger = logger
	}
}

func New(procAddr unsafe.Pointer, opts ...Option) *VulkanBackend {
	b := &VulkanBackend{procAddr: procAddr}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = core.Logger()
	}
	b.logger = b.logger.WithPrefix("vulkan")
	return b
}

func (b *VulkanBackend) Name() string {
	return "vulkan"
}

// Open creates the instance, the surface and the logical device. On error
// everything created so far is released.
func (b *VulkanBackend) Open(surface driver.Surface, appName string, apiVersion uint32) (driver.Device, error) {
	if b.procAddr == nil {
		return nil, fmt.Errorf("vulkan: GetInstanceProcAddr is nil: %w", driver.ErrUnsupported)
	}
	vk.SetGetInstanceProcAddr(b.procAddr)
	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("vulkan: init loader: %w", err)
	}
	if apiVersion == 0 {
		apiVersion = uint32(vk.MakeVersion(1, 1, 0))
	}

	context := &VulkanContext{
		window: surface,
		locks:  NewVulkanLockPool(),
		logger: b.logger,
	}
	if err := b.createInstance(context, appName, apiVersion, surface.RequiredInstanceExtensions()); err != nil {
		return nil, err
	}
	if b.debug {
		if err := b.createDebugger(context); err != nil {
			b.logger.Warn("validation callback unavailable", "err", err)
		}
	}

	b.logger.Debug("creating Vulkan surface")
	handle, err := surface.CreateSurface(context.Instance)
	if err != nil {
		destroyInstance(context)
		return nil, fmt.Errorf("vulkan: create surface: %w", err)
	}
	context.Surface = vk.SurfaceFromPointer(handle)

	device, err := DeviceCreate(context)
	if err != nil {
		destroyInstance(context)
		return nil, err
	}
	b.logger.Info("Vulkan device opened", "app", appName)
	return device, nil
}

func (b *VulkanBackend) createInstance(context *VulkanContext, appName string, apiVersion uint32, windowExtensions []string) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         apiVersion,
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("Lumen"),
		EngineVersion:      uint32(vk.MakeVersion(1, 0, 0)),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	extensions := append([]string{}, windowExtensions...)
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	var layers []string
	if b.debug {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
		available, err := instanceLayers()
		if err != nil {
			return err
		}
		if !available[validationLayer] {
			b.logger.Warn("validation layer is missing, continuing without it", "layer", validationLayer)
		} else {
			layers = append(layers, validationLayer)
		}
	}
	b.logger.Debug("instance configuration", "extensions", extensions, "layers", layers)

	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(extensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	var instance vk.Instance
	if err := resultError("vkCreateInstance", vk.CreateInstance(&createInfo, context.Allocator, &instance)); err != nil {
		return err
	}
	context.Instance = instance
	if err := vk.InitInstance(instance); err != nil {
		vk.DestroyInstance(instance, context.Allocator)
		return fmt.Errorf("vulkan: init instance: %w", err)
	}
	b.logger.Debug("Vulkan instance created")
	return nil
}

func instanceLayers() (map[string]bool, error) {
	var count uint32
	if err := resultError("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, nil)); err != nil {
		return nil, err
	}
	props := make([]vk.LayerProperties, count)
	if err := resultError("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, props)); err != nil {
		return nil, err
	}
	out := make(map[string]bool, count)
	for i := range props {
		props[i].Deref()
		out[cString(props[i].LayerName[:])] = true
	}
	return out, nil
}

func (b *VulkanBackend) createDebugger(context *VulkanContext) error {
	logger := b.logger
	debugCreateInfo := vk.DebugReportCallbackCreateInfo{
		SType: vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags: vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
		PfnCallback: func(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
			switch {
			case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
				logger.Error(pMessage, "layer", pLayerPrefix, "code", messageCode)
			case flags&vk.DebugReportFlags(vk.DebugReportWarningBit|vk.DebugReportPerformanceWarningBit) != 0:
				logger.Warn(pMessage, "layer", pLayerPrefix, "code", messageCode)
			default:
				logger.Debug(pMessage, "layer", pLayerPrefix, "code", messageCode)
			}
			return vk.Bool32(vk.False)
		},
	}
	var dbg vk.DebugReportCallback
	if err := resultError("vkCreateDebugReportCallback", vk.CreateDebugReportCallback(context.Instance, &debugCreateInfo, context.Allocator, &dbg)); err != nil {
		return err
	}
	context.debugMessenger = dbg
	return nil
}

func destroyInstance(context *VulkanContext) {
	if context.Surface != vk.NullSurface {
		vk.DestroySurface(context.Instance, context.Surface, context.Allocator)
		context.Surface = vk.NullSurface
	}
	if context.debugMessenger != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(context.Instance, context.debugMessenger, context.Allocator)
		context.debugMessenger = vk.NullDebugReportCallback
	}
	if context.Instance != nil {
		vk.DestroyInstance(context.Instance, context.Allocator)
		context.Instance = nil
	}
}

var errNoDevice = errors.New("vulkan: no physical device meets the requirements")
