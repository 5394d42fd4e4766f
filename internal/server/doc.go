// Package server implements the MCP (Model Context Protocol) tool server that
// exposes the decoders and image operations to MCP clients.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Logging goes to stderr so it never interleaves with responses.
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Basic Image Information:
//   - image_load: Decode an image and report dimensions, format and metadata
//   - image_dimensions: Get width and height
//
// Region Operations:
//   - image_crop: Extract rectangular region
//   - image_crop_quadrant: Extract named region (top-left, center, etc.)
//
// Geometry:
//   - image_resize: Resample with nearest, bilinear, CatmullRom or Lanczos
//   - image_rotate: Rotate clockwise by multiples of 90 degrees
//   - image_flip: Mirror horizontally, vertically or transpose
//
// Photometric:
//   - image_adjust: Brightness, contrast, gamma, saturation, hue, grayscale, sepia, invert
//   - image_filter: Box blur, sharpen, Laplacian edges, Gaussian blur, Canny edges
//
// Color Operations:
//   - image_sample_color: Get color at pixel
//   - image_sample_colors_multi: Sample multiple points
//   - image_dominant_colors: Extract color palette
//
// Encoding:
//   - image_convert: Re-encode to PNG, JPEG, GIF, TIFF or BMP
//
// Tools that produce an image return it base64-encoded, PNG unless the
// format argument says otherwise.
//
// # Image Caching
//
// Decoded images are cached by path for the lifetime of the process. Every
// tool call works on its own copy, so operations never leak into later
// calls.
//
// # Error Handling
//
// Tool failures are returned as JSON-RPC error responses:
//   - -32602: malformed arguments, unknown tool, or an argument value an
//     operation rejected (codecerr.InvalidArgument)
//   - -32000: any other failure, such as an unreadable or undecodable file
//   - -32601: unknown method; -32700: a request line that is not JSON
//
// The data field carries the Go error string.
//
// # Usage
//
//	srv := server.New(codec.WithAutoOrient(true))
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
