package control

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Name is the conventional file name of the control file within a store's
// root directory.
const Name = "store.control"

// mode tags whether a File is closed, open for read-write, or open
// read-only.
type mode uint8

const (
	modeClosed mode = iota
	modeRw
	modeRo
)

// ErrReadOnly is returned by SetPayload on a File opened read-only.
var ErrReadOnly = errors.New("control file is read-only")

// ErrNotReadOnly is returned by Reload on a File opened read-write.
var ErrNotReadOnly = errors.New("reload is only supported on a read-only control file")

// File is a control file opened in one of three states: Closed, Rw{payload}
// or Ro{payload}, per the state machine in spec §4.6.
type File struct {
	log  zerolog.Logger
	path string
	mode mode
	payload Payload
}

// OpenRw opens (creating if necessary) the control file at path for
// read-write access. A missing file is created on disk holding the zero
// Payload.
func OpenRw(log zerolog.Logger, path string) (*File, error) {
	f := File{
		log:  log.With().Str("component", "control").Str("path", path).Logger(),
		path: path,
		mode: modeRw,
	}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		f.payload = Payload{}
		encoded, err := Encode(f.payload)
		if err != nil {
			return nil, fmt.Errorf("could not encode control file: %w", err)
		}
		if err := writeAtomic(path, encoded); err != nil {
			return nil, fmt.Errorf("could not create control file: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("could not read control file: %w", err)
	default:
		payload, err := Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("could not decode control file: %w", err)
		}
		f.payload = payload
	}

	return &f, nil
}

// OpenRo opens the control file at path for read-only access.
func OpenRo(log zerolog.Logger, path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read control file: %w", err)
	}
	payload, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("could not decode control file: %w", err)
	}

	f := File{
		log:     log.With().Str("component", "control").Str("path", path).Logger(),
		path:    path,
		mode:    modeRo,
		payload: payload,
	}

	return &f, nil
}

// Payload returns the in-memory payload currently held by the file.
func (f *File) Payload() Payload {
	return f.payload
}

// SetPayload replaces the in-memory payload and atomically rewrites the
// file on disk. It fails on a read-only file.
func (f *File) SetPayload(p Payload) error {
	if f.mode == modeRo {
		return ErrReadOnly
	}

	encoded, err := Encode(p)
	if err != nil {
		return fmt.Errorf("could not encode control file: %w", err)
	}

	if err := writeAtomic(f.path, encoded); err != nil {
		return fmt.Errorf("could not write control file: %w", err)
	}

	f.payload = p
	f.log.Debug().Int64("generation", p.Status.Generation).Msg("control file updated")

	return nil
}

// Reload re-reads the control file atomically and replaces the in-memory
// payload. It is only supported on a file opened read-only.
func (f *File) Reload() error {
	if f.mode != modeRo {
		return ErrNotReadOnly
	}

	raw, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("could not read control file: %w", err)
	}
	payload, err := Decode(raw)
	if err != nil {
		return fmt.Errorf("could not decode control file: %w", err)
	}

	f.payload = payload

	return nil
}

// Close transitions the file back to Closed. There is nothing to flush:
// every SetPayload call already wrote its bytes atomically.
func (f *File) Close() error {
	f.mode = modeClosed
	return nil
}

// writeAtomic writes data to path by writing a temporary file in the same
// directory and renaming it into place, so readers always see either the
// old or the new contents in full, never a partial write.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("could not create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("could not write temp file: %w", writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("could not close temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("could not rename temp file into place: %w", err)
	}

	return nil
}
