//go:build linux

package radio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// GPIOLine is an enable line on a Linux GPIO chip.
type GPIOLine struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// OpenGPIO requests offset on chip ("gpiochip0") as an output, initially low.
func OpenGPIO(chip string, offset int) (*GPIOLine, error) {
	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	l, err := c.RequestLine(offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("copilot-radio"))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("request radio line %d: %w", offset, err)
	}
	return &GPIOLine{chip: c, line: l}, nil
}

// SetValue drives the line.
func (g *GPIOLine) SetValue(v int) error {
	return g.line.SetValue(v)
}

// Close returns the line to an input and releases the chip.
func (g *GPIOLine) Close() error {
	var errs []error
	if err := g.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure radio line: %w", err))
	}
	if err := g.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close radio line: %w", err))
	}
	if err := g.chip.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close chip: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
