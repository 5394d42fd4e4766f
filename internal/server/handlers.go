package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/ironsheep/rastercodec/internal/codec"
	"github.com/ironsheep/rastercodec/internal/codecerr"
	"github.com/ironsheep/rastercodec/internal/imaging"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "image_load", "image_crop").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// errUnknownTool is returned by executeTool for names it does not know.
var errUnknownTool = errors.New("unknown tool")

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Malformed arguments, unknown tools and rejected argument values return
// code -32602; any other failure returns -32000.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, codeInvalidParams, "Invalid params", err.Error())
	}

	result, err := s.executeTool(params.Name, params.Arguments)
	if err != nil {
		log.WithFields(log.Fields{"tool": params.Name}).WithError(err).Debug("tool failed")
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.Is(err, errUnknownTool), errors.Is(err, codecerr.ErrInvalidArg),
			errors.As(err, &syntaxErr), errors.As(err, &typeErr):
			return s.errorResponse(req.ID, codeInvalidParams, "Invalid params", err.Error())
		}
		return s.errorResponse(req.ID, codeToolFailed, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each tool handler:
//  1. Unmarshals arguments from JSON
//  2. Applies default values for optional parameters
//  3. Loads a private copy of the image from the cache
//  4. Applies the imaging operation and encodes the result
func (s *Server) executeTool(name string, args json.RawMessage) (interface{}, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	switch name {
	// Basic Image Information
	case "image_load":
		return s.handleImageLoad(args)
	case "image_dimensions":
		return s.handleImageDimensions(args)

	// Region Operations
	case "image_crop":
		return s.handleImageCrop(args)
	case "image_crop_quadrant":
		return s.handleImageCropQuadrant(args)

	// Geometry
	case "image_resize":
		return s.handleImageResize(args)
	case "image_rotate":
		return s.handleImageRotate(args)
	case "image_flip":
		return s.handleImageFlip(args)

	// Photometric
	case "image_adjust":
		return s.handleImageAdjust(args)
	case "image_filter":
		return s.handleImageFilter(args)

	// Color Operations
	case "image_sample_color":
		return s.handleImageSampleColor(args)
	case "image_sample_colors_multi":
		return s.handleImageSampleColorsMulti(args)
	case "image_dominant_colors":
		return s.handleImageDominantColors(args)

	// Encoding
	case "image_convert":
		return s.handleImageConvert(args)

	default:
		return nil, fmt.Errorf("%w: %s", errUnknownTool, name)
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// ImageInfo describes a decoded image file.
type ImageInfo struct {
	Path     string            `json:"path"`
	Width    int               `json:"width"`
	Height   int               `json:"height"`
	Format   string            `json:"format"`
	FileSize int64             `json:"file_size"`
	Metadata map[string]string `json:"metadata"`
}

// Dimensions is the result of image_dimensions.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ImageResult carries an encoded image back to the client.
type ImageResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// ConvertResult is returned by image_convert when writing to a file.
type ConvertResult struct {
	OutputPath string `json:"output_path"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	MimeType   string `json:"mime_type"`
	Bytes      int    `json:"bytes"`
}

// outputArgs are accepted by every tool that returns an image.
type outputArgs struct {
	Format  string `json:"format"`
	Quality int    `json:"quality"`
}

// encode serializes img for the client, PNG unless out names another format.
func encode(img *imaging.Image, out outputArgs) (*ImageResult, error) {
	if out.Format == "" {
		out.Format = "png"
	}
	f, err := imaging.ParseFormat(out.Format)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := img.Encode(&buf, f, imaging.EncodeOptions{Quality: out.Quality}); err != nil {
		return nil, err
	}
	return &ImageResult{
		Width:       img.Width(),
		Height:      img.Height(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    imaging.MIMEType(f),
	}, nil
}

// scale resizes img by factor with CatmullRom; 1 is a no-op.
func scale(img *imaging.Image, factor float64) error {
	if factor == 1 {
		return nil
	}
	if factor <= 0 || factor > 10 {
		return codecerr.Invalid("scale", "factor %g outside (0, 10]", factor)
	}
	w := int(math.Max(1, math.Round(float64(img.Width())*factor)))
	h := int(math.Max(1, math.Round(float64(img.Height())*factor)))
	return img.Resize(w, h, imaging.CatmullRom)
}

// === Basic Image Information Handlers ===

type imageLoadArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleImageLoad(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	st, err := os.Stat(a.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat image: %w", err)
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	return &ImageInfo{
		Path:     a.Path,
		Width:    img.Width(),
		Height:   img.Height(),
		Format:   img.Metadata["format"],
		FileSize: st.Size(),
		Metadata: img.Metadata,
	}, nil
}

func (s *Server) handleImageDimensions(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	return &Dimensions{Width: img.Width(), Height: img.Height()}, nil
}

// === Region Operation Handlers ===

type imageCropArgs struct {
	Path  string  `json:"path"`
	X1    int     `json:"x1"`
	Y1    int     `json:"y1"`
	X2    int     `json:"x2"`
	Y2    int     `json:"y2"`
	Scale float64 `json:"scale"`
	outputArgs
}

func (s *Server) handleImageCrop(args json.RawMessage) (interface{}, error) {
	var a imageCropArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Scale == 0 {
		a.Scale = 1.0
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	if err := img.Crop(a.X1, a.Y1, a.X2-a.X1, a.Y2-a.Y1); err != nil {
		return nil, err
	}
	if err := scale(img, a.Scale); err != nil {
		return nil, err
	}
	return encode(img, a.outputArgs)
}

type imageCropQuadrantArgs struct {
	Path   string  `json:"path"`
	Region string  `json:"region"`
	Scale  float64 `json:"scale"`
	outputArgs
}

func (s *Server) handleImageCropQuadrant(args json.RawMessage) (interface{}, error) {
	var a imageCropQuadrantArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Scale == 0 {
		a.Scale = 1.0
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	if err := img.CropRegion(a.Region); err != nil {
		return nil, err
	}
	if err := scale(img, a.Scale); err != nil {
		return nil, err
	}
	return encode(img, a.outputArgs)
}

// === Geometry Handlers ===

type imageResizeArgs struct {
	Path   string `json:"path"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Filter string `json:"filter"`
	outputArgs
}

func (s *Server) handleImageResize(args json.RawMessage) (interface{}, error) {
	var a imageResizeArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Filter == "" {
		a.Filter = "lanczos"
	}
	filter, err := imaging.ParseFilter(a.Filter)
	if err != nil {
		return nil, err
	}
	if a.Width == 0 && a.Height == 0 {
		return nil, codecerr.Invalid("resize", "width or height is required")
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	w, h := a.Width, a.Height
	switch {
	case w == 0:
		w = int(math.Max(1, math.Round(float64(img.Width())*float64(h)/float64(img.Height()))))
	case h == 0:
		h = int(math.Max(1, math.Round(float64(img.Height())*float64(w)/float64(img.Width()))))
	}
	if err := img.Resize(w, h, filter); err != nil {
		return nil, err
	}
	return encode(img, a.outputArgs)
}

type imageRotateArgs struct {
	Path    string `json:"path"`
	Degrees int    `json:"degrees"`
	outputArgs
}

func (s *Server) handleImageRotate(args json.RawMessage) (interface{}, error) {
	var a imageRotateArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	if err := img.Rotate(a.Degrees); err != nil {
		return nil, err
	}
	return encode(img, a.outputArgs)
}

type imageFlipArgs struct {
	Path      string `json:"path"`
	Direction string `json:"direction"`
	outputArgs
}

func (s *Server) handleImageFlip(args json.RawMessage) (interface{}, error) {
	var a imageFlipArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	var flip func(*imaging.Image)
	switch strings.ToLower(a.Direction) {
	case "horizontal", "h":
		flip = (*imaging.Image).FlipH
	case "vertical", "v":
		flip = (*imaging.Image).FlipV
	case "transpose":
		flip = (*imaging.Image).Transpose
	default:
		return nil, codecerr.Invalid("flip", "unknown direction %q", a.Direction)
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	flip(img)
	return encode(img, a.outputArgs)
}

// === Photometric Handlers ===

type imageAdjustArgs struct {
	Path       string   `json:"path"`
	Brightness *int     `json:"brightness"`
	Contrast   *int     `json:"contrast"`
	Gamma      *float64 `json:"gamma"`
	Saturation *int     `json:"saturation"`
	Hue        *int     `json:"hue"`
	Grayscale  bool     `json:"grayscale"`
	Sepia      bool     `json:"sepia"`
	Invert     bool     `json:"invert"`
	outputArgs
}

func (s *Server) handleImageAdjust(args json.RawMessage) (interface{}, error) {
	var a imageAdjustArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}

	// The image is a private copy, so a failure part way through is harmless.
	steps := []func() error{}
	if a.Brightness != nil {
		steps = append(steps, func() error { return img.Brightness(*a.Brightness) })
	}
	if a.Contrast != nil {
		steps = append(steps, func() error { return img.Contrast(*a.Contrast) })
	}
	if a.Gamma != nil {
		steps = append(steps, func() error { return img.Gamma(*a.Gamma) })
	}
	if a.Saturation != nil {
		steps = append(steps, func() error { return img.Saturation(*a.Saturation) })
	}
	if a.Hue != nil {
		steps = append(steps, func() error { return img.Hue(*a.Hue) })
	}
	if a.Grayscale {
		steps = append(steps, func() error { img.Grayscale(); return nil })
	}
	if a.Sepia {
		steps = append(steps, func() error { img.Sepia(); return nil })
	}
	if a.Invert {
		steps = append(steps, func() error { img.Invert(); return nil })
	}
	if len(steps) == 0 {
		return nil, codecerr.Invalid("adjust", "no adjustment requested")
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return encode(img, a.outputArgs)
}

type imageFilterArgs struct {
	Path          string  `json:"path"`
	Filter        string  `json:"filter"`
	Radius        float64 `json:"radius"`
	ThresholdLow  *int    `json:"threshold_low"`
	ThresholdHigh *int    `json:"threshold_high"`
	outputArgs
}

func (s *Server) handleImageFilter(args json.RawMessage) (interface{}, error) {
	var a imageFilterArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Radius == 0 {
		a.Radius = 2
	}
	low, high := 50, 150
	if a.ThresholdLow != nil {
		low = *a.ThresholdLow
	}
	if a.ThresholdHigh != nil {
		high = *a.ThresholdHigh
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(a.Filter) {
	case "blur":
		img.Blur()
	case "sharpen":
		img.Sharpen()
	case "edge":
		img.EdgeDetect()
	case "gaussian":
		err = img.GaussianBlur(a.Radius)
	case "canny":
		err = img.CannyEdges(low, high)
	default:
		err = codecerr.Invalid("filter", "unknown filter %q", a.Filter)
	}
	if err != nil {
		return nil, err
	}
	return encode(img, a.outputArgs)
}

// === Color Operation Handlers ===

type imageSampleColorArgs struct {
	Path string `json:"path"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
}

func (s *Server) handleImageSampleColor(args json.RawMessage) (interface{}, error) {
	var a imageSampleColorArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	return img.SampleColor(a.X, a.Y)
}

type imageSampleColorsMultiArgs struct {
	Path   string                 `json:"path"`
	Points []imaging.LabeledPoint `json:"points"`
}

func (s *Server) handleImageSampleColorsMulti(args json.RawMessage) (interface{}, error) {
	var a imageSampleColorsMultiArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	return img.SampleColorsMulti(a.Points)
}

type imageDominantColorsArgs struct {
	Path   string          `json:"path"`
	Count  int             `json:"count"`
	Region *imaging.Region `json:"region,omitempty"`
}

func (s *Server) handleImageDominantColors(args json.RawMessage) (interface{}, error) {
	var a imageDominantColorsArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Count == 0 {
		a.Count = 5
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	return img.DominantColors(a.Count, a.Region)
}

// === Encoding Handlers ===

type imageConvertArgs struct {
	Path       string `json:"path"`
	OutputPath string `json:"output_path"`
	outputArgs
}

func (s *Server) handleImageConvert(args json.RawMessage) (interface{}, error) {
	var a imageConvertArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	if a.OutputPath == "" {
		return encode(img, a.outputArgs)
	}

	mime := codec.MIMEFromPath(a.OutputPath)
	if a.Format != "" {
		f, err := imaging.ParseFormat(a.Format)
		if err != nil {
			return nil, err
		}
		mime = imaging.MIMEType(f)
	}
	if mime == "" {
		return nil, codecerr.Invalid("convert", "cannot infer a format from %q", a.OutputPath)
	}
	data, err := codec.Encode(img, mime, a.Quality)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(a.OutputPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", a.OutputPath, err)
	}
	return &ConvertResult{
		OutputPath: a.OutputPath,
		Width:      img.Width(),
		Height:     img.Height(),
		MimeType:   mime,
		Bytes:      len(data),
	}, nil
}
