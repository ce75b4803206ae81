package serialendpoint

import (
	"bufio"
	"io"

	"github.com/GiterLab/crc16"
)

// SLIP framing bytes (RFC 1055).
const (
	slipEnd    = 0xC0
	slipEsc    = 0xDB
	slipEscEnd = 0xDC
	slipEscEsc = 0xDD
)

var crcTable = crc16.MakeTable(crc16.CRC16_MODBUS)

// frameWriter encodes one CoAP datagram per SLIP frame: a trailing
// big-endian CRC16-MODBUS over the datagram is appended before
// byte-stuffing, giving the serial line the same integrity guarantee
// UDP's checksum gives the reference transport.
type frameWriter struct {
	w io.Writer
}

func newFrameWriter(w io.Writer) *frameWriter {
	return &frameWriter{w: w}
}

func (fw *frameWriter) WriteFrame(payload []byte) error {
	h := crc16.New(crcTable)
	h.Write(payload)
	sum := h.Sum16()

	buf := make([]byte, 0, len(payload)*2+4)
	buf = append(buf, slipEnd)
	buf = appendStuffed(buf, payload)
	buf = appendStuffed(buf, []byte{byte(sum >> 8), byte(sum)})
	buf = append(buf, slipEnd)

	_, err := fw.w.Write(buf)
	return err
}

func appendStuffed(dst []byte, data []byte) []byte {
	for _, b := range data {
		switch b {
		case slipEnd:
			dst = append(dst, slipEsc, slipEscEnd)
		case slipEsc:
			dst = append(dst, slipEsc, slipEscEsc)
		default:
			dst = append(dst, b)
		}
	}
	return dst
}

// frameReader decodes SLIP frames from a byte stream one at a time,
// verifying and stripping each frame's trailing CRC16.
type frameReader struct {
	r *bufio.Reader
}

func newFrameReader(r io.Reader) *frameReader {
	return &frameReader{r: bufio.NewReader(r)}
}

// ReadFrame blocks until one complete, CRC-valid frame has been read
// and returns its payload with the trailing checksum stripped.
func (fr *frameReader) ReadFrame() ([]byte, error) {
	for {
		frame, err := fr.readRawFrame()
		if err != nil {
			return nil, err
		}
		if len(frame) < 2 {
			continue // too short to carry a CRC; drop and resync
		}
		payload := frame[:len(frame)-2]
		got := uint16(frame[len(frame)-2])<<8 | uint16(frame[len(frame)-1])

		h := crc16.New(crcTable)
		h.Write(payload)
		if h.Sum16() != got {
			continue // corrupted frame; drop and resync, same as a too-short frame
		}
		return payload, nil
	}
}

// readRawFrame reads bytes up to the next END delimiter, undoing byte
// stuffing, skipping leading empty frames (consecutive ENDs).
func (fr *frameReader) readRawFrame() ([]byte, error) {
	var out []byte
	for {
		b, err := fr.r.ReadByte()
		if err != nil {
			return nil, err
		}
		switch b {
		case slipEnd:
			if len(out) == 0 {
				continue
			}
			return out, nil
		case slipEsc:
			nb, err := fr.r.ReadByte()
			if err != nil {
				return nil, err
			}
			switch nb {
			case slipEscEnd:
				out = append(out, slipEnd)
			case slipEscEsc:
				out = append(out, slipEsc)
			default:
				out = append(out, nb)
			}
		default:
			out = append(out, b)
		}
	}
}
