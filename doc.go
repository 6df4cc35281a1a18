// Package texquad renders a single textured quad with a user-supplied WGSL
// shader on the gogpu stack and records the first seconds of output as a
// video.
//
// # Quick Start
//
//	app, err := texquad.New(
//		texquad.WithImage("photo.jpg"),
//		texquad.WithOnVideo(func(v *capture.Video, err error) { ... }),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer app.Close()
//	if err := app.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// # Frame loop
//
// Run builds the GPU context (device, surface, texture, uniforms, bind
// group, pipeline) and fails before the first frame if any of it cannot be
// created. It then drives the scheduler from a ticker at the configured
// frame rate. Each tick writes the elapsed time and frame delta, in
// milliseconds, into the uniform block and draws the quad.
//
// # Shader contract
//
// The shader module exposes vs_main and fs_main. Group 0 holds this
// uniform block at binding 0, the image texture at binding 1 and a
// filtering sampler at binding 2:
//
//	struct Uniforms {
//		width: f32,      // logical surface width
//		height: f32,     // logical surface height
//		time: f32,       // ms since the first frame
//		delta_time: f32, // ms since the previous frame
//	}
//
// The vertex stage receives one vec2<f32> clip-space position at location
// 0; six vertices cover the surface with two triangles.
//
// # Capture
//
// Recording starts with the first frame and stops on a one-shot
// timer (10 seconds by default) without stopping rendering. The finished
// Motion-JPEG AVI is handed to the WithOnVideo callback.
package texquad
