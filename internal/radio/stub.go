//go:build !linux

package radio

import "errors"

// GPIOLine is not available on non-Linux platforms.
type GPIOLine struct{}

// OpenGPIO returns an error on non-Linux platforms.
func OpenGPIO(chip string, offset int) (*GPIOLine, error) {
	return nil, errors.New("radio: gpio not supported on this platform (requires Linux)")
}

// SetValue is not implemented on non-Linux platforms.
func (g *GPIOLine) SetValue(int) error {
	return errors.New("radio: gpio not supported")
}

// Close is not implemented on non-Linux platforms.
func (g *GPIOLine) Close() error {
	return nil
}
