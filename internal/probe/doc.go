// Package probe provides ffprobe-based video inspection: dimensions, frame
// rate and frame count of the primary video stream, from a single JSON call
// per file.
package probe
