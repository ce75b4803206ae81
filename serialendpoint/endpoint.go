// Package serialendpoint is an alternate coap.Endpoint over a framed
// serial line, for spec.md section 4.4's "implementers MAY extend"
// clause. Datagrams are framed with SLIP and trailed with a CRC16,
// since a UART has no built-in message boundaries or checksum the way
// a UDP socket does.
package serialendpoint

import (
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/tarm/serial"
)

// Config mirrors the teacher's UartConnector fields, narrowed to one
// port per Endpoint instead of a pooled connector.
type Config struct {
	Name        string
	Baud        int
	ReadTimeout time.Duration
	Size        byte
	Parity      serial.Parity
	StopBits    serial.StopBits
}

// DefaultConfig matches the teacher's NewUartConnecter defaults.
func DefaultConfig(portName string) Config {
	return Config{
		Name:        portName,
		Baud:        115200,
		ReadTimeout: 500 * time.Millisecond,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
	}
}

// Endpoint is a coap.Endpoint backed by one open serial port.
type Endpoint struct {
	port   *serial.Port
	writer *frameWriter
	reader *frameReader

	frames   chan []byte
	readable chan struct{}
	closed   chan struct{}
	pumpErr  chan error
}

// Open opens the configured serial port and starts the background
// frame-reading pump.
func Open(cfg Config) (*Endpoint, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Name,
		Baud:        cfg.Baud,
		Parity:      cfg.Parity,
		Size:        cfg.Size,
		ReadTimeout: cfg.ReadTimeout,
		StopBits:    cfg.StopBits,
	})
	if err != nil {
		return nil, errors.Wrap(err, "serialendpoint: open port")
	}

	ep := &Endpoint{
		port:     port,
		writer:   newFrameWriter(port),
		reader:   newFrameReader(port),
		frames:   make(chan []byte, 16),
		readable: make(chan struct{}, 1),
		closed:   make(chan struct{}),
		pumpErr:  make(chan error, 1),
	}
	go ep.pump()
	return ep, nil
}

func (e *Endpoint) pump() {
	for {
		frame, err := e.reader.ReadFrame()
		if err != nil {
			select {
			case e.pumpErr <- err:
			default:
			}
			return
		}
		select {
		case e.frames <- frame:
		case <-e.closed:
			return
		}
		select {
		case e.readable <- struct{}{}:
		default:
		}
	}
}

// Send frames b as one SLIP+CRC16 datagram.
func (e *Endpoint) Send(b []byte) (int, error) {
	if err := e.writer.WriteFrame(b); err != nil {
		return 0, err
	}
	return len(b), nil
}

// Recv dequeues the next decoded frame. Only valid after Readable has
// fired.
func (e *Endpoint) Recv(buf []byte) (int, error) {
	select {
	case frame := <-e.frames:
		n := copy(buf, frame)
		if len(e.frames) > 0 {
			select {
			case e.readable <- struct{}{}:
			default:
			}
		}
		return n, nil
	default:
		return 0, errors.New("serialendpoint: Recv called with no frame pending")
	}
}

// Readable fires once a frame is queued and ready for Recv.
func (e *Endpoint) Readable() <-chan struct{} {
	return e.readable
}

// Close stops the read pump and closes the serial port, aggregating
// whichever of those two independent failure modes actually occurred.
func (e *Endpoint) Close() error {
	close(e.closed)

	var result *multierror.Error
	if err := e.port.Close(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "serialendpoint: close port"))
	}
	select {
	case err := <-e.pumpErr:
		if err != nil {
			result = multierror.Append(result, errors.Wrap(err, "serialendpoint: read pump"))
		}
	default:
	}
	return result.ErrorOrNil()
}
