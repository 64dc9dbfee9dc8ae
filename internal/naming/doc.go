// Package naming maps source videos to their output containers.
//
// Outputs mirror the source subtree under a destination root that contains
// exactly one directory named MaskedVideos:
//
//	<video_dir>/rig1/day3/clip.avi
//	  -> <mask_dir>/MaskedVideos/rig1/day3/clip.mvc
//
// The same mapping is applied to the staging root. Because the output name
// drops the source extension, two sources can map to one output; Claims
// detects that within a run.
package naming
