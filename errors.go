package texquad

import (
	"errors"

	"github.com/gogpu/texquad/internal/gpu"
	"github.com/gogpu/texquad/internal/image"
)

// Fatal bootstrap errors. Run returns them, wrapped, before the first frame.
var (
	ErrNoAdapter       = gpu.ErrNoAdapter
	ErrInstance        = gpu.ErrInstance
	ErrDeviceRequest   = gpu.ErrDeviceRequest
	ErrSurface         = gpu.ErrSurface
	ErrShaderCompile   = gpu.ErrShaderCompile
	ErrShaderContract  = gpu.ErrShaderContract
	ErrBindingMismatch = gpu.ErrBindingMismatch
	ErrImageLoad       = image.ErrImageLoad
)

var (
	// ErrClosed is returned by Run after Close.
	ErrClosed = errors.New("texquad: app closed")

	// ErrRunning is returned by Run while another Run is active.
	ErrRunning = errors.New("texquad: app already running")

	// ErrAlreadyRan is returned by Run once a previous Run has rendered.
	ErrAlreadyRan = errors.New("texquad: app already ran")

	// ErrNoImage is returned by New when no image source was configured.
	ErrNoImage = errors.New("texquad: no image configured")
)
