package plugins

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/linht/concentrator-manager/sx125x"
	"github.com/linht/concentrator-manager/sx1301"
)

// ConcentratorPlugin exposes the SX1301 and its radio chains over the
// management API: bring-up, paged register access and per-radio control.
type ConcentratorPlugin struct {
	dev    *sx1301.Device
	radios RadioConfig
}

var errNotAttached = errors.New("concentrator not attached")

// NewConcentratorPlugin creates a new concentrator plugin instance
func NewConcentratorPlugin(deps Deps) (*ConcentratorPlugin, error) {
	if deps.Device == nil {
		return nil, errors.New("concentrator plugin requires a device")
	}

	cfg := deps.Radios
	if cfg.ClockOut == "" {
		cfg.ClockOut = "a"
	}
	if cfg.A.RxFreq == 0 {
		cfg.A.RxFreq = 868500000
	}
	if cfg.B.RxFreq == 0 {
		cfg.B.RxFreq = 868500000
	}

	slog.Info("Concentrator plugin initializing",
		"radio_a", cfg.A.Type, "radio_b", cfg.B.Type, "clock_out", cfg.ClockOut)

	return &ConcentratorPlugin{dev: deps.Device, radios: cfg}, nil
}

// Name returns the plugin identifier
func (p *ConcentratorPlugin) Name() string {
	return "concentrator"
}

// RegisterRoutes adds the plugin's HTTP routes
func (p *ConcentratorPlugin) RegisterRoutes(app *fiber.App) {
	api := app.Group("/api/concentrator")

	// Device control endpoints
	api.Post("/attach", p.handleAttach)
	api.Post("/reset", p.handleReset)
	api.Get("/status", p.handleStatus)
	api.Get("/info", p.handleInfo)

	// Paged register access
	api.Get("/register/:page/:addr", p.handleReadRegister)
	api.Post("/register/:page/:addr", p.handleWriteRegister)

	// Radio chain endpoints
	api.Post("/radios/setup", p.handleSetupRadios)
	api.Get("/radio/:radio/version", p.handleRadioVersion)
	api.Get("/radio/:radio/pll", p.handleRadioPLL)
	api.Post("/radio/:radio/setup", p.handleRadioSetup)
	api.Get("/radio/:radio/mode", p.handleRadioMode)
	api.Post("/radio/:radio/mode", p.handleRadioSetMode)
	api.Get("/radio/:radio/frequency/rx", p.handleRadioRxFrequency)
	api.Post("/radio/:radio/frequency/rx", p.handleRadioSetRxFrequency)
	api.Get("/radio/:radio/frequency/tx", p.handleRadioTxFrequency)
	api.Post("/radio/:radio/frequency/tx", p.handleRadioSetTxFrequency)
	api.Get("/radio/:radio/register/:addr", p.handleRadioReadRegister)
	api.Post("/radio/:radio/register/:addr", p.handleRadioWriteRegister)

	slog.Info("Concentrator plugin routes registered")
}

// Shutdown performs cleanup
func (p *ConcentratorPlugin) Shutdown() error {
	// The device is shared and closed by the daemon
	return nil
}

// settings returns the configured chain settings for a radio name.
func (p *ConcentratorPlugin) settings(name string) (RadioSettings, error) {
	switch name {
	case "a":
		return p.radios.A, nil
	case "b":
		return p.radios.B, nil
	}
	return RadioSettings{}, fmt.Errorf("unknown radio %q", name)
}

// radio builds the driver for one radio chain. The driver is stateless,
// so a fresh instance per request costs nothing.
func (p *ConcentratorPlugin) radio(name string) (*sx125x.Radio, error) {
	settings, err := p.settings(name)
	if err != nil {
		return nil, err
	}

	var bus *sx1301.RadioBus
	switch name {
	case "a":
		bus = p.dev.RadioA()
	case "b":
		bus = p.dev.RadioB()
	}
	if bus == nil {
		return nil, errNotAttached
	}
	return sx125x.New(bus.Name(), bus, radioType(settings.Type)), nil
}

func (p *ConcentratorPlugin) sendRadioError(c *fiber.Ctx, err error) error {
	if errors.Is(err, errNotAttached) {
		return SendErrorMessage(c, 409, err.Error())
	}
	return SendErrorMessage(c, 400, err.Error())
}

func radioType(name string) sx125x.Type {
	if strings.EqualFold(name, "sx1257") {
		return sx125x.SX1257
	}
	return sx125x.SX1255
}

// SetupRadios configures both radio chains. The chain named by
// cfg.ClockOut (radio A when unset) drives the concentrator clock.
func SetupRadios(dev *sx1301.Device, cfg RadioConfig) error {
	clockOut := cfg.ClockOut
	if clockOut == "" {
		clockOut = "a"
	}

	chains := []struct {
		name     string
		bus      *sx1301.RadioBus
		settings RadioSettings
	}{
		{"a", dev.RadioA(), cfg.A},
		{"b", dev.RadioB(), cfg.B},
	}
	for _, chain := range chains {
		if chain.bus == nil {
			return errNotAttached
		}
		radio := sx125x.New(chain.bus.Name(), chain.bus, radioType(chain.settings.Type))
		err := radio.Setup(sx125x.Opts{
			RxFreq:   chain.settings.RxFreq,
			ClockOut: clockOut == chain.name,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Device control handlers

func (p *ConcentratorPlugin) handleAttach(c *fiber.Ctx) error {
	if err := p.dev.Attach(); err != nil {
		slog.Error("Concentrator attach failed", "error", err)
		return SendError(c, err)
	}

	version, err := p.dev.Version()
	if err != nil {
		return SendError(c, err)
	}

	slog.Info("Concentrator attached", "version", version)
	return SendSuccess(c, fiber.Map{"version": version}, "Concentrator attached")
}

func (p *ConcentratorPlugin) handleReset(c *fiber.Ctx) error {
	if err := p.dev.Regs().SoftReset(); err != nil {
		slog.Error("Concentrator soft reset failed", "error", err)
		return SendError(c, err)
	}
	return SendSuccess(c, nil, "Soft reset issued")
}

func (p *ConcentratorPlugin) handleStatus(c *fiber.Ctx) error {
	status := fiber.Map{"attached": p.dev.Attached()}
	if p.dev.Attached() {
		version, err := p.dev.Version()
		if err != nil {
			return SendError(c, err)
		}
		status["version"] = version
	}
	return SendSuccess(c, status, "")
}

func (p *ConcentratorPlugin) handleInfo(c *fiber.Ctx) error {
	info := fiber.Map{
		"radios":   p.radios,
		"attached": p.dev.Attached(),
	}
	if bus := p.dev.BusInfo(); bus != nil {
		info["bus"] = bus
	}
	return SendSuccess(c, info, "")
}

// Paged register handlers

func parsePage(c *fiber.Ctx) (uint8, bool) {
	page, err := c.ParamsInt("page")
	if err != nil || page < 0 || page > 3 {
		return 0, false
	}
	return uint8(page), true
}

func parseAddr(c *fiber.Ctx) (uint8, bool) {
	addr, err := c.ParamsInt("addr")
	if err != nil || addr < 0 || addr > 0x7F {
		return 0, false
	}
	return uint8(addr), true
}

func (p *ConcentratorPlugin) handleReadRegister(c *fiber.Ctx) error {
	page, ok := parsePage(c)
	if !ok {
		return SendErrorMessage(c, 400, "Invalid register page")
	}
	addr, ok := parseAddr(c)
	if !ok {
		return SendErrorMessage(c, 400, "Invalid register address")
	}

	value, err := p.dev.Regs().ReadOnPage(page, addr)
	if err != nil {
		return SendError(c, err)
	}

	return SendSuccess(c, fiber.Map{
		"page":      page,
		"address":   fmt.Sprintf("0x%02X", addr),
		"value":     fmt.Sprintf("0x%02X", value),
		"value_dec": value,
	}, "")
}

func (p *ConcentratorPlugin) handleWriteRegister(c *fiber.Ctx) error {
	page, ok := parsePage(c)
	if !ok {
		return SendErrorMessage(c, 400, "Invalid register page")
	}
	addr, ok := parseAddr(c)
	if !ok {
		return SendErrorMessage(c, 400, "Invalid register address")
	}

	var req struct {
		Value *int `json:"value"`
	}
	if err := c.BodyParser(&req); err != nil || req.Value == nil || *req.Value < 0 || *req.Value > 0xFF {
		return SendErrorMessage(c, 400, "Invalid register value")
	}

	if err := p.dev.Regs().WriteOnPage(page, addr, uint8(*req.Value)); err != nil {
		return SendError(c, err)
	}

	slog.Info("Register written", "page", page,
		"addr", fmt.Sprintf("0x%02X", addr), "value", fmt.Sprintf("0x%02X", *req.Value))
	return SendSuccess(c, nil, "Register written")
}

// Radio chain handlers

func (p *ConcentratorPlugin) handleSetupRadios(c *fiber.Ctx) error {
	if err := SetupRadios(p.dev, p.radios); err != nil {
		if errors.Is(err, errNotAttached) {
			return p.sendRadioError(c, err)
		}
		slog.Error("Radio setup failed", "error", err)
		return SendError(c, err)
	}
	return SendSuccess(c, nil, "Radio chains configured")
}

func (p *ConcentratorPlugin) handleRadioSetup(c *fiber.Ctx) error {
	name := c.Params("radio")
	radio, err := p.radio(name)
	if err != nil {
		return p.sendRadioError(c, err)
	}
	settings, _ := p.settings(name)

	clockOut := p.radios.ClockOut == name
	if err := radio.Setup(sx125x.Opts{RxFreq: settings.RxFreq, ClockOut: clockOut}); err != nil {
		slog.Error("Radio setup failed", "radio", name, "error", err)
		return SendError(c, err)
	}
	return SendSuccess(c, fiber.Map{"frequency": settings.RxFreq}, "Radio configured")
}

func (p *ConcentratorPlugin) handleRadioVersion(c *fiber.Ctx) error {
	radio, err := p.radio(c.Params("radio"))
	if err != nil {
		return p.sendRadioError(c, err)
	}

	version, err := radio.Version()
	if err != nil {
		return SendError(c, err)
	}

	return SendSuccess(c, fiber.Map{
		"version": fmt.Sprintf("%d.%d", version>>4, version&0x0F),
		"raw":     fmt.Sprintf("0x%02X", version),
	}, "")
}

func (p *ConcentratorPlugin) handleRadioPLL(c *fiber.Ctx) error {
	radio, err := p.radio(c.Params("radio"))
	if err != nil {
		return p.sendRadioError(c, err)
	}

	pll, err := radio.PLL()
	if err != nil {
		return SendError(c, err)
	}
	return SendSuccess(c, pll, "")
}

func (p *ConcentratorPlugin) handleRadioMode(c *fiber.Ctx) error {
	radio, err := p.radio(c.Params("radio"))
	if err != nil {
		return p.sendRadioError(c, err)
	}

	mode, err := radio.Mode()
	if err != nil {
		return SendError(c, err)
	}
	return SendSuccess(c, fiber.Map{"mode": mode}, "")
}

func (p *ConcentratorPlugin) handleRadioSetMode(c *fiber.Ctx) error {
	radio, err := p.radio(c.Params("radio"))
	if err != nil {
		return p.sendRadioError(c, err)
	}

	var req struct {
		Mode *int `json:"mode"`
	}
	if err := c.BodyParser(&req); err != nil || req.Mode == nil || *req.Mode < 0 || *req.Mode > 0xFF {
		return SendErrorMessage(c, 400, "Invalid mode")
	}

	if err := radio.SetMode(uint8(*req.Mode)); err != nil {
		return SendError(c, err)
	}
	return SendSuccess(c, nil, "Mode set")
}

func (p *ConcentratorPlugin) handleRadioRxFrequency(c *fiber.Ctx) error {
	radio, err := p.radio(c.Params("radio"))
	if err != nil {
		return p.sendRadioError(c, err)
	}

	freq, err := radio.RxFrequency()
	if err != nil {
		return SendError(c, err)
	}
	return SendSuccess(c, fiber.Map{"frequency": freq}, "")
}

func (p *ConcentratorPlugin) handleRadioSetRxFrequency(c *fiber.Ctx) error {
	radio, err := p.radio(c.Params("radio"))
	if err != nil {
		return p.sendRadioError(c, err)
	}

	freq, ok := parseFrequency(c)
	if !ok {
		return SendErrorMessage(c, 400, "Invalid frequency")
	}

	if err := radio.SetRxFrequency(freq); err != nil {
		return SendError(c, err)
	}
	return SendSuccess(c, fiber.Map{"frequency": freq}, "RX frequency set")
}

func (p *ConcentratorPlugin) handleRadioTxFrequency(c *fiber.Ctx) error {
	radio, err := p.radio(c.Params("radio"))
	if err != nil {
		return p.sendRadioError(c, err)
	}

	freq, err := radio.TxFrequency()
	if err != nil {
		return SendError(c, err)
	}
	return SendSuccess(c, fiber.Map{"frequency": freq}, "")
}

func (p *ConcentratorPlugin) handleRadioSetTxFrequency(c *fiber.Ctx) error {
	radio, err := p.radio(c.Params("radio"))
	if err != nil {
		return p.sendRadioError(c, err)
	}

	freq, ok := parseFrequency(c)
	if !ok {
		return SendErrorMessage(c, 400, "Invalid frequency")
	}

	if err := radio.SetTxFrequency(freq); err != nil {
		return SendError(c, err)
	}
	return SendSuccess(c, fiber.Map{"frequency": freq}, "TX frequency set")
}

func parseFrequency(c *fiber.Ctx) (uint32, bool) {
	var req struct {
		Frequency *uint32 `json:"frequency"`
	}
	if err := c.BodyParser(&req); err != nil || req.Frequency == nil || *req.Frequency == 0 {
		return 0, false
	}
	return *req.Frequency, true
}

func (p *ConcentratorPlugin) handleRadioReadRegister(c *fiber.Ctx) error {
	radio, err := p.radio(c.Params("radio"))
	if err != nil {
		return p.sendRadioError(c, err)
	}
	addr, ok := parseAddr(c)
	if !ok {
		return SendErrorMessage(c, 400, "Invalid register address")
	}

	value, err := radio.ReadRegister(addr)
	if err != nil {
		return SendError(c, err)
	}

	return SendSuccess(c, fiber.Map{
		"address":   fmt.Sprintf("0x%02X", addr),
		"value":     fmt.Sprintf("0x%02X", value),
		"value_dec": value,
	}, "")
}

func (p *ConcentratorPlugin) handleRadioWriteRegister(c *fiber.Ctx) error {
	radio, err := p.radio(c.Params("radio"))
	if err != nil {
		return p.sendRadioError(c, err)
	}
	addr, ok := parseAddr(c)
	if !ok {
		return SendErrorMessage(c, 400, "Invalid register address")
	}

	var req struct {
		Value *int `json:"value"`
	}
	if err := c.BodyParser(&req); err != nil || req.Value == nil || *req.Value < 0 || *req.Value > 0xFF {
		return SendErrorMessage(c, 400, "Invalid register value")
	}

	if err := radio.WriteRegister(addr, uint8(*req.Value)); err != nil {
		return SendError(c, err)
	}
	return SendSuccess(c, nil, "Register written")
}

// Register the plugin
func init() {
	Register("concentrator", func(deps Deps) (Plugin, error) {
		return NewConcentratorPlugin(deps)
	})
}
