package gpu

import "errors"

// Fatal bootstrap errors. Callers match them with errors.Is.
var (
	// ErrInstance is returned when the backend cannot create an instance.
	ErrInstance = errors.New("gpu: create instance failed")

	// ErrNoAdapter is returned when no adapter can serve the target.
	ErrNoAdapter = errors.New("gpu: no compatible adapter")

	// ErrDeviceRequest is returned when the adapter refuses to open a device.
	ErrDeviceRequest = errors.New("gpu: device request failed")

	// ErrSurface is returned when the presentable surface cannot be created
	// or configured.
	ErrSurface = errors.New("gpu: surface setup failed")

	// ErrShaderCompile is returned when WGSL fails to parse or validate.
	ErrShaderCompile = errors.New("gpu: shader compilation failed")

	// ErrShaderContract is returned when a shader does not expose the entry
	// points and bindings the pipeline is built around.
	ErrShaderContract = errors.New("gpu: shader does not match binding contract")

	// ErrBindingMismatch is returned when bind group entries do not cover
	// exactly the slots declared by the layout.
	ErrBindingMismatch = errors.New("gpu: bind group does not match layout")

	// ErrClosed is returned by a Scheduler once its Context is closed.
	ErrClosed = errors.New("gpu: context closed")
)
