package capture

import "errors"

var (
	// ErrNotRecording is returned by Stop when no session is active,
	// including a second Stop of the same session.
	ErrNotRecording = errors.New("capture: not recording")

	// ErrAlreadyRecording is returned by Start while a session is active.
	ErrAlreadyRecording = errors.New("capture: already recording")

	// ErrNoFrames is returned by Stop when the session received no frames.
	ErrNoFrames = errors.New("capture: no frames recorded")
)
