package index

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/eak1mov/go-tilestream/store"
	"github.com/eak1mov/go-tilestream/tile"
)

var ErrReadOnly = errors.New("tilestream: packed archive is read-only")

// IndexPath is where the index of the archive with the given data file lives.
func IndexPath(dataPath string) string {
	return dataPath + ".idx"
}

// Writer builds a packed archive. Tiles are appended to the data file in
// write order; Finalize writes the index sorted by tile index.
type Writer struct {
	dataPath string
	dataFile *os.File
	data     *bufio.Writer
	items    []Item
	offset   uint64
	seen     map[tile.Index]bool
}

func NewWriter(dataPath string) (*Writer, error) {
	f, err := os.Create(dataPath)
	if err != nil {
		return nil, err
	}
	return &Writer{
		dataPath: dataPath,
		dataFile: f,
		data:     bufio.NewWriter(f),
		seen:     make(map[tile.Index]bool),
	}, nil
}

func (w *Writer) WriteTile(idx tile.Index, data []byte) error {
	if w.seen[idx] {
		return fmt.Errorf("duplicate tile %v", idx)
	}
	if _, err := w.data.Write(data); err != nil {
		return err
	}
	w.seen[idx] = true
	w.items = append(w.items, Item{I: idx.I, J: idx.J, Length: uint32(len(data)), Offset: w.offset})
	w.offset += uint64(len(data))
	return nil
}

func (w *Writer) Finalize() error {
	if err := w.data.Flush(); err != nil {
		return err
	}

	slices.SortFunc(w.items, func(a, b Item) int {
		return tile.Compare(a.Index(), b.Index())
	})

	indexFile, err := os.Create(IndexPath(w.dataPath))
	if err != nil {
		return err
	}
	indexWriter := bufio.NewWriter(indexFile)
	if err := WriteAll(w.items, indexWriter); err != nil {
		indexFile.Close()
		return err
	}
	return errors.Join(indexWriter.Flush(), indexFile.Close())
}

func (w *Writer) Close() error {
	return w.dataFile.Close()
}

// Reader serves tiles from a packed archive. It satisfies store.Store; Put
// always fails with ErrReadOnly.
type Reader struct {
	file  *os.File
	items []Item
	byIdx map[tile.Index]Item
}

var (
	_ store.Store  = (*Reader)(nil)
	_ tile.Visitor = (*Reader)(nil)
)

// NewReader loads the index of the archive and opens its data file.
//
// The returned Reader must be closed after use to release the file.
func NewReader(dataPath string) (*Reader, error) {
	indexData, err := os.ReadFile(IndexPath(dataPath))
	if err != nil {
		return nil, err
	}
	items, err := ReadAll(indexData)
	if err != nil {
		return nil, err
	}

	byIdx := make(map[tile.Index]Item, len(items))
	for _, item := range items {
		byIdx[item.Index()] = item
	}

	f, err := os.Open(dataPath)
	if err != nil {
		return nil, err
	}
	return &Reader{file: f, items: items, byIdx: byIdx}, nil
}

func (r *Reader) Len() int {
	return len(r.items)
}

func (r *Reader) Get(_ context.Context, idx tile.Index) ([]byte, error) {
	item, ok := r.byIdx[idx]
	if !ok {
		return nil, fmt.Errorf("%w: %v", store.ErrNotFound, idx)
	}
	return r.read(item)
}

func (r *Reader) read(item Item) ([]byte, error) {
	data := make([]byte, item.Length)
	if _, err := r.file.ReadAt(data, int64(item.Offset)); err != nil {
		return nil, fmt.Errorf("read tile %v: %w", item.Index(), err)
	}
	return data, nil
}

func (r *Reader) Put(context.Context, tile.Index, []byte) error {
	return ErrReadOnly
}

func (r *Reader) Close() error {
	return r.file.Close()
}

// VisitPayloads calls visitor for every tile in index order.
func (r *Reader) VisitPayloads(visitor func(tile.Index, []byte) error) error {
	for _, item := range r.items {
		data, err := r.read(item)
		if err != nil {
			return err
		}
		if err := visitor(item.Index(), data); err != nil {
			return err
		}
	}
	return nil
}
