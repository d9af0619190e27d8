package plugins

import (
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/linht/concentrator-manager/sx1301"
)

// BusWatchPlugin streams the concentrator's register traffic over
// WebSocket. Every read and write on the control bus shows up as one JSON
// event, which makes the page switching and the radio transactions
// visible while poking the hardware from the API.
type BusWatchPlugin struct {
	dev      *sx1301.Device
	validate TokenValidator

	sessionsMu sync.Mutex
	sessions   map[string]time.Time
}

// NewBusWatchPlugin creates a new bus watch plugin instance
func NewBusWatchPlugin(deps Deps) (*BusWatchPlugin, error) {
	if deps.Device == nil {
		return nil, errors.New("bus watch plugin requires a device")
	}
	return &BusWatchPlugin{
		dev:      deps.Device,
		validate: deps.Validate,
		sessions: make(map[string]time.Time),
	}, nil
}

// Name returns the plugin identifier
func (p *BusWatchPlugin) Name() string {
	return "buswatch"
}

// RegisterRoutes adds the plugin's HTTP routes
func (p *BusWatchPlugin) RegisterRoutes(app *fiber.App) {
	api := app.Group("/api/buswatch")

	// WebSocket endpoint for the event stream
	api.Get("/stream", websocket.New(p.handleStream))

	// REST endpoint to list open watch sessions
	api.Get("/sessions", p.listSessions)
}

// Shutdown performs cleanup
func (p *BusWatchPlugin) Shutdown() error {
	p.sessionsMu.Lock()
	defer p.sessionsMu.Unlock()

	// Dropping the subscriptions closes the event channels, which ends
	// the stream handlers.
	for id := range p.sessions {
		p.dev.Unsubscribe(id)
		delete(p.sessions, id)
	}
	return nil
}

// handleStream pushes bus events to one WebSocket client until the
// client goes away or the daemon shuts down.
func (p *BusWatchPlugin) handleStream(c *websocket.Conn) {
	// Sessions can outlive the login that opened them, so the token is
	// checked again at connect time.
	if p.validate != nil && !p.validate(c.Query("token")) {
		c.WriteJSON(fiber.Map{"error": "Unauthorized"})
		return
	}

	id := uuid.New().String()
	events := p.dev.Subscribe(id)

	p.sessionsMu.Lock()
	p.sessions[id] = time.Now()
	p.sessionsMu.Unlock()

	defer func() {
		p.dev.Unsubscribe(id)
		p.sessionsMu.Lock()
		delete(p.sessions, id)
		p.sessionsMu.Unlock()
	}()

	// Goroutine: drain the client side. Its read error, usually a close
	// frame, tears the subscription down and ends the write loop below.
	go func() {
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				p.dev.Unsubscribe(id)
				return
			}
		}
	}()

	for event := range events {
		if err := c.WriteJSON(event); err != nil {
			return
		}
	}
}

// listSessions returns the open watch sessions
func (p *BusWatchPlugin) listSessions(c *fiber.Ctx) error {
	p.sessionsMu.Lock()
	defer p.sessionsMu.Unlock()

	result := make([]fiber.Map, 0, len(p.sessions))
	for id, started := range p.sessions {
		result = append(result, fiber.Map{
			"id":      id,
			"started": started.Unix(),
		})
	}
	return SendSuccess(c, result, "")
}

// Register the plugin
func init() {
	Register("buswatch", func(deps Deps) (Plugin, error) {
		return NewBusWatchPlugin(deps)
	})
}
