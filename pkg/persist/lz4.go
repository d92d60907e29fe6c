package persist

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

// Errors returned by codec selection and the LZ4 codec.
var (
	ErrUnknownFormat = errors.New("unknown state format")
	ErrCorruptBlock  = errors.New("corrupt lz4 state block")
)

const lz4Extension = ".lz4"

// Block modes. Incompressible payloads are stored raw.
const (
	blockRaw byte = iota
	blockLZ4
)

// LZ4Codec compresses the output of another codec as a single LZ4 block prefixed by a mode
// byte and the uvarint length of the uncompressed payload.
type LZ4Codec struct {
	inner Codec
}

// NewLZ4Codec wraps inner.
func NewLZ4Codec(inner Codec) *LZ4Codec {
	return &LZ4Codec{inner: inner}
}

// Encode implements Codec.Encode.
func (c *LZ4Codec) Encode(w io.Writer, state any) error {
	var raw bytes.Buffer

	err := c.inner.Encode(&raw, state)
	if err != nil {
		return err
	}

	compressed := make([]byte, lz4.CompressBlockBound(raw.Len()))

	written, err := lz4.CompressBlock(raw.Bytes(), compressed, nil)
	if err != nil {
		return fmt.Errorf("lz4 compress: %w", err)
	}

	mode, payload := blockLZ4, compressed[:written]
	if written == 0 || written >= raw.Len() {
		mode, payload = blockRaw, raw.Bytes()
	}

	header := make([]byte, 1, 1+binary.MaxVarintLen64)
	header[0] = mode
	header = binary.AppendUvarint(header, uint64(raw.Len()))

	_, err = w.Write(append(header, payload...))
	if err != nil {
		return fmt.Errorf("write lz4 block: %w", err)
	}

	return nil
}

// Decode implements Codec.Decode.
func (c *LZ4Codec) Decode(r io.Reader, state any) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read lz4 block: %w", err)
	}

	if len(data) == 0 {
		return ErrCorruptBlock
	}

	size, n := binary.Uvarint(data[1:])
	if n <= 0 {
		return ErrCorruptBlock
	}

	payload := data[1+n:]

	switch data[0] {
	case blockRaw:
	case blockLZ4:
		raw := make([]byte, size)

		got, uncompressErr := lz4.UncompressBlock(payload, raw)
		if uncompressErr != nil {
			return fmt.Errorf("%w: %w", ErrCorruptBlock, uncompressErr)
		}

		payload = raw[:got]
	default:
		return fmt.Errorf("%w: mode %d", ErrCorruptBlock, data[0])
	}

	if uint64(len(payload)) != size {
		return fmt.Errorf("%w: %d bytes, want %d", ErrCorruptBlock, len(payload), size)
	}

	return c.inner.Decode(bytes.NewReader(payload), state)
}

// Extension implements Codec.Extension.
func (c *LZ4Codec) Extension() string {
	return c.inner.Extension() + lz4Extension
}
