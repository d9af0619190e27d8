package sx1301

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// ResetLine drives the concentrator's hardware reset input. Drive(true)
// asserts reset, Drive(false) releases it.
type ResetLine interface {
	Drive(active bool) error
}

// GPIOResetLine is a ResetLine on a character-device GPIO pin.
type GPIOResetLine struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewGPIOResetLine requests the reset pin as an output, initially
// released.
func NewGPIOResetLine(chipName string, pin int) (*GPIOResetLine, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("failed to open GPIO chip %s: %w", chipName, err)
	}

	line, err := chip.RequestLine(pin,
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer("concentrator-reset"))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("failed to request reset pin %d: %w", pin, err)
	}

	return &GPIOResetLine{chip: chip, line: line}, nil
}

// Drive sets the reset line state.
func (g *GPIOResetLine) Drive(active bool) error {
	value := 0
	if active {
		value = 1
	}
	if err := g.line.SetValue(value); err != nil {
		return fmt.Errorf("failed to drive reset pin: %w", err)
	}
	return nil
}

// Close releases the pin and the chip.
func (g *GPIOResetLine) Close() error {
	var firstErr error
	if err := g.line.Close(); err != nil {
		firstErr = fmt.Errorf("failed to release reset pin: %w", err)
	}
	if err := g.chip.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close GPIO chip: %w", err)
	}
	return firstErr
}
