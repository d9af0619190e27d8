package sx1301

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// RegIO is the raw register channel of the concentrator. One call is one
// round trip on the control bus; addresses are 7 bit and page-relative.
type RegIO interface {
	ReadRegister(addr uint8) (uint8, error)
	WriteRegister(addr uint8, value uint8) error
}

// SPIDevice drives the concentrator's control interface over a Linux
// spidev port using periph.io.
type SPIDevice struct {
	port   spi.PortCloser
	conn   spi.Conn
	device string
	speed  physic.Frequency
}

// NewSPIDevice opens the SPI port and configures it for the concentrator
// (mode 0, 8-bit words).
func NewSPIDevice(device string, speedHz uint32) (*SPIDevice, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize host drivers: %w", err)
	}

	port, err := spireg.Open(device)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI device %s: %w", device, err)
	}

	speed := physic.Frequency(speedHz) * physic.Hertz
	conn, err := port.Connect(speed, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to configure SPI device %s: %w", device, err)
	}

	return &SPIDevice{
		port:   port,
		conn:   conn,
		device: device,
		speed:  speed,
	}, nil
}

// Close releases the SPI port.
func (s *SPIDevice) Close() error {
	if err := s.port.Close(); err != nil {
		return fmt.Errorf("failed to close SPI device %s: %w", s.device, err)
	}
	return nil
}

// Transfer performs a full-duplex SPI transaction.
func (s *SPIDevice) Transfer(write []byte) ([]byte, error) {
	read := make([]byte, len(write))
	if err := s.conn.Tx(write, read); err != nil {
		return nil, fmt.Errorf("SPI transfer failed: %w", err)
	}
	return read, nil
}

// ReadRegister reads a single register. The address is sent with the
// write bit clear followed by a dummy byte that clocks the value out.
func (s *SPIDevice) ReadRegister(addr uint8) (uint8, error) {
	resp, err := s.Transfer([]byte{addr & 0x7F, 0x00})
	if err != nil {
		return 0, fmt.Errorf("failed to read register 0x%02X: %w", addr, err)
	}
	return resp[1], nil
}

// WriteRegister writes a single register. The address is sent with the
// write bit set followed by the value.
func (s *SPIDevice) WriteRegister(addr uint8, value uint8) error {
	if _, err := s.Transfer([]byte{addr | 0x80, value}); err != nil {
		return fmt.Errorf("failed to write register 0x%02X: %w", addr, err)
	}
	return nil
}

// Info describes the open port for diagnostics.
func (s *SPIDevice) Info() map[string]interface{} {
	return map[string]interface{}{
		"device": s.device,
		"speed":  s.speed.String(),
		"mode":   "0",
		"bits":   8,
	}
}
