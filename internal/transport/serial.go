package transport

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tarm/serial"
)

// AllowedBaudRates enumerates the baud rates this tool will configure a
// serial line for.
var AllowedBaudRates = map[int]bool{
	9600:   true,
	115200: true,
	230400: true,
}

// SerialConfig configures the serial transport variant.
type SerialConfig struct {
	Device string
	Baud   int
}

// Serial implements Transport over a raw serial line: 8 data bits, no
// parity, 1 stop bit, no flow control, raw (non-canonical) mode. The
// underlying github.com/tarm/serial port already opens in raw mode and
// applies the requested baud; ReadTimeout approximates a VMIN=0,
// VTIME=5 (0.5s) inter-byte timeout, since the library does not expose
// termios fields directly.
type Serial struct {
	log  *logrus.Entry
	port *serial.Port
	stop chan struct{}
}

// OpenSerial opens the device at cfg.Device with the given baud rate.
func OpenSerial(cfg SerialConfig, log *logrus.Entry) (*Serial, error) {
	if !AllowedBaudRates[cfg.Baud] {
		return nil, fmt.Errorf("unsupported baud rate %d", cfg.Baud)
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: 500 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Device, err)
	}

	return &Serial{
		log:  log,
		port: port,
		stop: make(chan struct{}),
	}, nil
}

// Send writes the whole framed packet in a single write.
func (s *Serial) Send(packet []byte) error {
	n, err := s.port.Write(packet)
	if err != nil {
		return fmt.Errorf("serial send: %w", err)
	}
	if n != len(packet) {
		return fmt.Errorf("serial send: short write %d/%d bytes", n, len(packet))
	}
	return nil
}

// StartReceive runs a submit-then-callback loop: each completed read's
// bytes are fed to onData, then a new read is posted, until Close or a
// fatal error.
func (s *Serial) StartReceive(onData func(data []byte), onError func(err error)) error {
	go func() {
		buf := make([]byte, 2048)
		for {
			select {
			case <-s.stop:
				return
			default:
			}

			n, err := s.port.Read(buf)
			if err != nil {
				select {
				case <-s.stop:
					return
				default:
				}
				s.log.WithError(err).Warn("serial receive failed")
				onError(fmt.Errorf("serial receive: %w", err))
				return
			}
			if n > 0 {
				onData(buf[:n])
			}
		}
	}()
	return nil
}

// Close stops the receive loop and closes the device.
func (s *Serial) Close() error {
	close(s.stop)
	return s.port.Close()
}
