package composite

import (
	"fmt"
	"image"
	"image/png"
	"os"
)

// WriteError reports a failed output artifact write. Writes are never
// retried internally: a deterministic write that failed once needs caller
// intervention, not repetition.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// WritePNG persists an image artifact.
func WritePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return &WriteError{Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	return nil
}

// WriteOverlayKML persists the placement descriptor for a composited
// raster. The document uses the same GroundOverlay format the inputs
// arrive in, so a run's output can feed a later run.
func WriteOverlayKML(path string, ov Overlay) error {
	f, err := os.Create(path)
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}
	if err := EncodeOverlayKML(f, ov); err != nil {
		f.Close()
		return &WriteError{Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	return nil
}
