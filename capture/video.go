package capture

import (
	"fmt"
	"io"
	"os"
	"time"
)

// Video is a finished, playable recording on disk.
type Video struct {
	// Path is the AVI file. It lives in the session's Dir until Remove.
	Path string

	// Frames is the number of frames in the container.
	Frames int

	// Duration is the wall-clock length of the session.
	Duration time.Duration

	// FPS is the container frame rate.
	FPS int

	Width, Height int
}

// Open returns a reader over the video file.
func (v *Video) Open() (io.ReadCloser, error) {
	f, err := os.Open(v.Path)
	if err != nil {
		return nil, fmt.Errorf("open video: %w", err)
	}
	return f, nil
}

// Size returns the file size in bytes.
func (v *Video) Size() (int64, error) {
	fi, err := os.Stat(v.Path)
	if err != nil {
		return 0, fmt.Errorf("stat video: %w", err)
	}
	return fi.Size(), nil
}

// SaveTo copies the video into w.
func (v *Video) SaveTo(w io.Writer) (int64, error) {
	r, err := v.Open()
	if err != nil {
		return 0, err
	}
	defer r.Close()
	n, err := io.Copy(w, r)
	if err != nil {
		return n, fmt.Errorf("save video: %w", err)
	}
	return n, nil
}

// Remove deletes the video file.
func (v *Video) Remove() error {
	if err := os.Remove(v.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove video: %w", err)
	}
	return nil
}
