// Package gpu renders texquad's animated full-screen quad through the
// gogpu HAL.
//
// Construction happens once, in dependency order:
//
//	AcquireDevice -> NewResourceSet -> NewBindingContract -> NewPipeline
//
// NewContext runs the whole chain and returns a single owned Context.
// A Scheduler then drives one render pass per Tick, writing the frame
// timestamps into the uniform buffer and drawing six vertices into the
// current Target image. Everything in this package expects to be called
// from one goroutine.
package gpu
