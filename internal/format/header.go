// Package format provides the shared binary header for lazytail's on-disk
// state files.
package format

import "errors"

// Header layout (4 bytes):
//
//	signature (1 byte, 'L' = 0x4c)
//	type (1 byte, identifies the file kind)
//	version (1 byte)
//	flags (1 byte, reserved)
const (
	Signature  = 'L'
	HeaderSize = 4

	// TypeCheckpoint marks a persisted index checkpoint.
	TypeCheckpoint = 'c'
)

var (
	ErrHeaderTooSmall    = errors.New("header too small")
	ErrSignatureMismatch = errors.New("signature mismatch")
	ErrTypeMismatch      = errors.New("type mismatch")
	ErrVersionMismatch   = errors.New("version mismatch")
)

// Header is the common 4-byte file header.
type Header struct {
	Type    byte
	Version byte
	Flags   byte
}

// Encode returns the header as its 4-byte wire form.
func (h Header) Encode() [HeaderSize]byte {
	return [HeaderSize]byte{Signature, h.Type, h.Version, h.Flags}
}

// Decode reads a header from the start of buf.
func Decode(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrHeaderTooSmall
	}
	if buf[0] != Signature {
		return Header{}, ErrSignatureMismatch
	}
	return Header{
		Type:    buf[1],
		Version: buf[2],
		Flags:   buf[3],
	}, nil
}

// DecodeAndValidate reads a header and checks its type and version, so a
// reader can reject a foreign or outdated file before decoding the payload.
func DecodeAndValidate(buf []byte, wantType, wantVersion byte) (Header, error) {
	h, err := Decode(buf)
	if err != nil {
		return Header{}, err
	}
	if h.Type != wantType {
		return Header{}, ErrTypeMismatch
	}
	if h.Version != wantVersion {
		return Header{}, ErrVersionMismatch
	}
	return h, nil
}
