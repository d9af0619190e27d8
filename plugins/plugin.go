package plugins

import (
	"github.com/gofiber/fiber/v2"

	"github.com/linht/concentrator-manager/sx1301"
)

// Plugin interface that all plugins must implement
type Plugin interface {
	// Name returns the plugin identifier
	Name() string

	// RegisterRoutes adds the plugin's HTTP routes to the app
	RegisterRoutes(app *fiber.App)

	// Shutdown performs cleanup when the plugin is stopped
	Shutdown() error
}

// Deps carries the shared resources plugin factories build on.
type Deps struct {
	Device   *sx1301.Device
	Radios   RadioConfig
	Validate TokenValidator
}

// RadioConfig describes the radio chains behind the concentrator.
type RadioConfig struct {
	A        RadioSettings `yaml:"a"`
	B        RadioSettings `yaml:"b"`
	ClockOut string        `yaml:"clock_out"` // "a" or "b", the chain driving CLK_OUT
}

// RadioSettings configures one radio chain.
type RadioSettings struct {
	Type   string `yaml:"type"`    // "sx1255" or "sx1257"
	RxFreq uint32 `yaml:"rx_freq"` // Hz
}

// PluginFactory creates a new plugin instance
type PluginFactory func(deps Deps) (Plugin, error)

var registry = make(map[string]PluginFactory)

// Register adds a plugin factory to the registry
func Register(name string, factory PluginFactory) {
	registry[name] = factory
}

// Get retrieves a plugin factory by name
func Get(name string) (PluginFactory, bool) {
	factory, exists := registry[name]
	return factory, exists
}

// TokenValidator is a function type for validating authentication tokens
type TokenValidator func(token string) bool
