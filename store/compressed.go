package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/eak1mov/go-tilestream/tile"
	"github.com/klauspost/compress/zstd"
)

// Compressed stores payloads zstd-compressed in another Store.
type Compressed struct {
	next    Store
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

var _ Store = (*Compressed)(nil)

func NewCompressed(next Store, level zstd.EncoderLevel) (*Compressed, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, err
	}
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		encoder.Close()
		return nil, err
	}
	return &Compressed{next: next, encoder: encoder, decoder: decoder}, nil
}

func (c *Compressed) Get(ctx context.Context, idx tile.Index) ([]byte, error) {
	data, err := c.next.Get(ctx, idx)
	if err != nil {
		return nil, err
	}
	result, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decode tile %v: %w", idx, err)
	}
	return result, nil
}

func (c *Compressed) Put(ctx context.Context, idx tile.Index, data []byte) error {
	return c.next.Put(ctx, idx, c.encoder.EncodeAll(data, nil))
}

func (c *Compressed) Close() error {
	c.decoder.Close()
	return errors.Join(c.encoder.Close(), c.next.Close())
}
