// Package checkpoint persists a partially composited output image so a
// random-sampling run can be stopped and later resumed.
//
// A checkpoint file holds a fixed header followed by the zstd-compressed
// pixel buffer:
//
//	magic   [4]byte  "FSCK"
//	version uint16
//	format  uint16   models.Format
//	width   uint32
//	height  uint32
//	run id  [16]byte
package checkpoint

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"focusstack/internal/models"
)

const (
	magic   = "FSCK"
	version = 1

	// maxPixels guards the allocation made from an untrusted header
	maxPixels = 1 << 28
)

var (
	// ErrNotCheckpoint is returned when a file does not start with the checkpoint magic
	ErrNotCheckpoint = errors.New("not a checkpoint file")

	// ErrVersion is returned for checkpoints written by an unknown format version
	ErrVersion = errors.New("unsupported checkpoint version")

	// ErrCorrupt is returned when the header or pixel data is inconsistent
	ErrCorrupt = errors.New("corrupt checkpoint")
)

// Header describes the image stored in a checkpoint
type Header struct {
	// RunID identifies the run that wrote the checkpoint
	RunID uuid.UUID

	Width  int
	Height int
	Format models.Format
}

type rawHeader struct {
	Magic   [4]byte
	Version uint16
	Format  uint16
	Width   uint32
	Height  uint32
	RunID   [16]byte
}

// Save writes img to path. The file is written next to path and renamed
// into place, so an interrupted save never leaves a truncated checkpoint.
func Save(path string, runID uuid.UUID, img *models.RasterImage) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating checkpoint directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("error creating checkpoint: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Write(tmp, runID, img); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("error closing checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("error moving checkpoint into place: %w", err)
	}
	return nil
}

// Write encodes img as a checkpoint stream
func Write(w io.Writer, runID uuid.UUID, img *models.RasterImage) error {
	hdr := rawHeader{
		Version: version,
		Format:  uint16(img.Format),
		Width:   uint32(img.Width),
		Height:  uint32(img.Height),
		RunID:   runID,
	}
	copy(hdr.Magic[:], magic)

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("error writing checkpoint header: %w", err)
	}

	enc, err := zstd.NewWriter(bw)
	if err != nil {
		return fmt.Errorf("error creating compressor: %w", err)
	}
	if _, err := enc.Write(img.Pix); err != nil {
		enc.Close()
		return fmt.Errorf("error compressing pixels: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("error compressing pixels: %w", err)
	}
	return bw.Flush()
}

// Load reads the checkpoint at path
func Load(path string) (*models.RasterImage, Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Header{}, err
	}
	defer f.Close()

	img, hdr, err := Read(bufio.NewReader(f))
	if err != nil {
		return nil, Header{}, fmt.Errorf("%s: %w", path, err)
	}
	return img, hdr, nil
}

// Read decodes a checkpoint stream
func Read(r io.Reader) (*models.RasterImage, Header, error) {
	var raw rawHeader
	if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, Header{}, ErrNotCheckpoint
		}
		return nil, Header{}, err
	}
	if string(raw.Magic[:]) != magic {
		return nil, Header{}, ErrNotCheckpoint
	}
	if raw.Version != version {
		return nil, Header{}, fmt.Errorf("%w: %d", ErrVersion, raw.Version)
	}

	hdr := Header{
		RunID:  uuid.UUID(raw.RunID),
		Width:  int(raw.Width),
		Height: int(raw.Height),
		Format: models.Format(raw.Format),
	}
	if hdr.Format != models.FormatRGBA && hdr.Format != models.FormatGray {
		return nil, Header{}, fmt.Errorf("%w: unknown pixel format %d", ErrCorrupt, raw.Format)
	}
	if uint64(raw.Width)*uint64(raw.Height) > maxPixels {
		return nil, Header{}, fmt.Errorf("%w: %dx%d exceeds the size limit", ErrCorrupt, raw.Width, raw.Height)
	}

	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, Header{}, fmt.Errorf("error creating decompressor: %w", err)
	}
	defer dec.Close()

	img := models.NewRasterImage(hdr.Width, hdr.Height, hdr.Format)
	if _, err := io.ReadFull(dec, img.Pix); err != nil {
		return nil, Header{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	// Trailing pixel data means the header lied about the size
	if n, _ := dec.Read(make([]byte, 1)); n != 0 {
		return nil, Header{}, fmt.Errorf("%w: pixel data exceeds %dx%d", ErrCorrupt, hdr.Width, hdr.Height)
	}

	return img, hdr, nil
}
