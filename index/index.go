// Package index implements packed tile archives: payloads concatenated in a
// data file plus a fixed-width binary index locating each of them.
package index

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/eak1mov/go-tilestream/tile"
)

// Item is a single index record, mapping a tile index to the location
// (Offset, Length) of its payload in the data file. Records are little-endian
// and 20 bytes long so that other tools can read them without this package.
type Item struct {
	I      int32
	J      int32
	Length uint32
	Offset uint64
}

var itemSize = binary.Size(Item{})

func (i Item) Index() tile.Index {
	return tile.Index{I: i.I, J: i.J}
}

func WriteAll(items []Item, writer io.Writer) error {
	return binary.Write(writer, binary.LittleEndian, items)
}

func ReadAll(indexData []byte) ([]Item, error) {
	if len(indexData)%itemSize != 0 {
		return nil, fmt.Errorf("index size %d is not a multiple of %d", len(indexData), itemSize)
	}
	items := make([]Item, len(indexData)/itemSize)

	err := binary.Read(bytes.NewReader(indexData), binary.LittleEndian, items)
	if err != nil {
		return nil, err
	}

	return items, nil
}
