// Package ffmpeg builds and runs the ffmpeg decode pipe used to read video
// frames as 8-bit grayscale.
//
// Frames are written by ffmpeg as raw gray bytes on stdout, one
// width*height block per frame. Stderr is drained on a helper goroutine:
// showinfo lines (frame number and presentation time) are forwarded on a
// channel, and the remaining lines are kept as a short tail used to explain
// failures.
package ffmpeg
