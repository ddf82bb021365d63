// Package tactile provides raw tactile sample sources for the skin
// pipeline.
//
// The serial wire format is a fixed-length frame:
//
//	0xAA 0x55 | n sensor bytes | xor checksum of the sensor bytes
//
// Each sensor byte is the raw pressure reading (255 = unloaded cell
// pulled fully up, lower = more pressure).
package tactile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// Frame header bytes.
const (
	Header0 byte = 0xAA
	Header1 byte = 0x55
)

var (
	// ErrNoData is returned before the first complete frame arrives.
	ErrNoData = errors.New("tactile: no data received yet")

	// ErrChecksum is returned by the decoder for a corrupted frame.
	ErrChecksum = errors.New("tactile: frame checksum mismatch")
)

// Checksum is the xor of the payload bytes.
func Checksum(payload []byte) byte {
	var c byte
	for _, b := range payload {
		c ^= b
	}
	return c
}

// EncodeFrame builds a wire frame for the given sensor bytes.
func EncodeFrame(payload []byte) []byte {
	frame := make([]byte, 0, len(payload)+3)
	frame = append(frame, Header0, Header1)
	frame = append(frame, payload...)
	return append(frame, Checksum(payload))
}

// Decoder extracts fixed-length frames from a byte stream, skipping
// garbage until the next header.
type Decoder struct {
	r       *bufio.Reader
	sensors int
	buf     []byte

	skipped uint64 // bytes discarded while searching for a header
	corrupt uint64 // frames rejected by the checksum
}

// NewDecoder creates a decoder for frames carrying sensors bytes.
func NewDecoder(r io.Reader, sensors int) *Decoder {
	return &Decoder{
		r:       bufio.NewReader(r),
		sensors: sensors,
		buf:     make([]byte, sensors+1),
	}
}

// Next blocks until the next valid frame and returns its payload. The
// returned slice is reused by subsequent calls. A checksum failure is
// reported once and the decoder resynchronizes on the following call.
func (d *Decoder) Next() ([]byte, error) {
	if err := d.sync(); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(d.r, d.buf); err != nil {
		return nil, err
	}
	payload := d.buf[:d.sensors]
	if sum := d.buf[d.sensors]; sum != Checksum(payload) {
		d.corrupt++
		return nil, fmt.Errorf("%w: got 0x%02x, want 0x%02x", ErrChecksum, sum, Checksum(payload))
	}
	return payload, nil
}

// sync consumes bytes up to and including the next frame header.
func (d *Decoder) sync() error {
	matched := false
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return err
		}
		switch {
		case matched && b == Header1:
			return nil
		case b == Header0:
			if matched {
				d.skipped++
			}
			matched = true
		default:
			if matched {
				d.skipped++
			}
			d.skipped++
			matched = false
		}
	}
}

// Stats returns the number of skipped bytes and corrupted frames.
func (d *Decoder) Stats() (skipped, corrupt uint64) {
	return d.skipped, d.corrupt
}
