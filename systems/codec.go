package systems

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// FileMagic opens every terrain file ("TER1" read as a little-endian int32).
const FileMagic int32 = 0x54455231

var (
	// ErrBadMagic is returned when a file does not start with FileMagic.
	ErrBadMagic = errors.New("not a terrain file")
	// ErrSizeMismatch is returned when a file's dimensions differ from the grid.
	ErrSizeMismatch = errors.New("terrain size mismatch")
)

// cellRecord lists the cell layouts that can be persisted. Each is four
// float32 fields written in declaration order.
type cellRecord interface {
	Cell | SnowCell
}

type fileHeader struct {
	Magic  int32
	Width  int32
	Height int32
}

// EncodeGrid writes the header and every cell, little-endian.
func EncodeGrid[T cellRecord](w io.Writer, g *Grid[T]) error {
	bw := bufio.NewWriterSize(w, 256*1024)
	hdr := fileHeader{Magic: FileMagic, Width: int32(g.W), Height: int32(g.H)}
	if err := binary.Write(bw, binary.LittleEndian, hdr); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, g.Cells); err != nil {
		return fmt.Errorf("writing cells: %w", err)
	}
	return bw.Flush()
}

// DecodeGrid reads a file written by EncodeGrid into g. The header must
// match g's dimensions and the whole payload is read before g is touched,
// so on any error g is unchanged.
func DecodeGrid[T cellRecord](r io.Reader, g *Grid[T]) error {
	br := bufio.NewReaderSize(r, 256*1024)
	var hdr fileHeader
	if err := binary.Read(br, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	if hdr.Magic != FileMagic {
		return fmt.Errorf("%w: magic %#x", ErrBadMagic, uint32(hdr.Magic))
	}
	if !g.SameSize(int(hdr.Width), int(hdr.Height)) {
		return fmt.Errorf("%w: file is %dx%d, grid is %dx%d",
			ErrSizeMismatch, hdr.Width, hdr.Height, g.W, g.H)
	}

	cells := make([]T, len(g.Cells))
	if err := binary.Read(br, binary.LittleEndian, cells); err != nil {
		return fmt.Errorf("reading cells: %w", err)
	}
	copy(g.Cells, cells)
	return nil
}

// SaveGrid writes g to path via a temporary file and rename, so a failed
// save never leaves a truncated file behind.
func SaveGrid[T cellRecord](path string, g *Grid[T]) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmp, err)
	}
	if err := EncodeGrid(f, g); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming %s: %w", tmp, err)
	}
	return nil
}

// LoadGrid reads path into g. See DecodeGrid.
func LoadGrid[T cellRecord](path string, g *Grid[T]) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return DecodeGrid(f, g)
}
