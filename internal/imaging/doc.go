// Package imaging holds the decoded image type and every pixel operation the
// codecs, the tool server and the CLI share.
//
// An Image is a straight-alpha RGBA buffer with its width, height and a
// free-form metadata map filled in by the decoder. Operations mutate the
// image in place: geometric transforms (Resize, Crop, Rotate, FlipH, FlipV,
// Transpose, Orient) replace the buffer and dimensions together, while
// color adjustments and convolution filters replace the buffer and keep the
// dimensions. Nothing hands out a view of the live buffer.
//
// # Coordinate System
//
// All pixel coordinates are 0-based with the origin at the top-left corner:
// X increases rightward and Y increases downward. Regions use (X1, Y1)
// inclusive and (X2, Y2) exclusive.
//
// # Errors
//
// Argument validation happens before any work, so an operation that returns
// an error leaves the image untouched. Validation failures carry the
// codecerr.InvalidArgument kind. Out-of-range rectangles, angles and
// adjustment amounts are rejected rather than clamped.
//
// # Libraries
//
// Nearest and bilinear resampling, the 3x3 filters and the basic color
// adjustments work directly on the buffer. CatmullRom and Lanczos resampling
// and all output encoders come from github.com/disintegration/imaging;
// gamma, saturation, hue and Gaussian blur from
// github.com/anthonynsimon/bild; HSL conversion from
// github.com/lucasb-eyer/go-colorful.
//
// # Thread Safety
//
// Cache is safe for concurrent use. An individual Image is not; callers that
// share one across goroutines must synchronize.
package imaging
