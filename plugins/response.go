package plugins

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/linht/concentrator-manager/sx1301"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// SendSuccess sends a successful response
func SendSuccess(c *fiber.Ctx, data interface{}, message string) error {
	return c.JSON(APIResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// SendError sends an error response. The status code follows the error
// kind: transfer shapes the hardware cannot express are the caller's
// fault, a chip that answers with the wrong identity is a gateway
// problem, everything else is an internal failure.
func SendError(c *fiber.Ctx, err error) error {
	status := 500
	var unexpected *sx1301.UnexpectedDeviceError
	switch {
	case errors.Is(err, sx1301.ErrInvalidTransfer):
		status = 400
	case errors.As(err, &unexpected):
		status = 502
	}
	return c.Status(status).JSON(APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// SendErrorMessage sends an error response with a custom message
func SendErrorMessage(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(APIResponse{
		Success: false,
		Error:   message,
	})
}
