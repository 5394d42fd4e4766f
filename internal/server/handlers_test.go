package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/bmp"

	"github.com/ironsheep/rastercodec/internal/imaging"
)

// createTestImageFile writes a PNG with red, green, blue and white
// quadrants and returns its path.
func createTestImageFile(t *testing.T, width, height int) string {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.NRGBA{255, 255, 255, 255}
			switch {
			case x < width/2 && y < height/2:
				c = color.NRGBA{255, 0, 0, 255}
			case y < height/2:
				c = color.NRGBA{0, 255, 0, 255}
			case x < width/2:
				c = color.NRGBA{0, 0, 255, 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}

	path := filepath.Join(t.TempDir(), "handler-test.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return path
}

// callTool issues a tools/call request and returns the response.
func callTool(t *testing.T, s *Server, name string, args map[string]interface{}) *MCPResponse {
	t.Helper()
	paramsJSON, err := json.Marshal(map[string]interface{}{"name": name, "arguments": args})
	if err != nil {
		t.Fatal(err)
	}
	resp := s.handleRequest(&MCPRequest{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: paramsJSON})
	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	return resp
}

// toolResult unmarshals the text content of a successful tool response.
func toolResult(t *testing.T, resp *MCPResponse, v interface{}) {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}
	result := resp.Result.(map[string]interface{})
	content := result["content"].([]map[string]interface{})
	if len(content) != 1 || content[0]["type"] != "text" {
		t.Fatalf("unexpected content: %v", content)
	}
	if err := json.Unmarshal([]byte(content[0]["text"].(string)), v); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
}

// resultImage decodes the image carried by an ImageResult.
func resultImage(t *testing.T, r ImageResult) image.Image {
	t.Helper()
	data, err := base64.StdEncoding.DecodeString(r.ImageBase64)
	if err != nil {
		t.Fatalf("failed to decode base64: %v", err)
	}
	var img image.Image
	switch r.MimeType {
	case "image/png":
		img, err = png.Decode(bytes.NewReader(data))
	case "image/jpeg":
		img, err = jpeg.Decode(bytes.NewReader(data))
	default:
		t.Fatalf("unexpected mime type %s", r.MimeType)
	}
	if err != nil {
		t.Fatalf("failed to decode %s: %v", r.MimeType, err)
	}
	if img.Bounds().Dx() != r.Width || img.Bounds().Dy() != r.Height {
		t.Errorf("reported %dx%d, image is %v", r.Width, r.Height, img.Bounds())
	}
	return img
}

func rgbaAt(img image.Image, x, y int) color.NRGBA {
	return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
}

func expectError(t *testing.T, resp *MCPResponse, code int) {
	t.Helper()
	if resp.Error == nil {
		t.Fatalf("expected error %d, got result %v", code, resp.Result)
	}
	if resp.Error.Code != code {
		t.Errorf("error code: got %d (%v), want %d", resp.Error.Code, resp.Error.Data, code)
	}
}

func TestHandleToolsCall_ImageLoad(t *testing.T) {
	s := New()
	imgPath := createTestImageFile(t, 100, 80)

	var info ImageInfo
	toolResult(t, callTool(t, s, "image_load", map[string]interface{}{"path": imgPath}), &info)

	if info.Width != 100 || info.Height != 80 {
		t.Errorf("dimensions: got %dx%d, want 100x80", info.Width, info.Height)
	}
	if info.Format != "png" || info.Path != imgPath || info.FileSize <= 0 {
		t.Errorf("unexpected info %+v", info)
	}
	if info.Metadata["bit_depth"] != "8" {
		t.Errorf("metadata: got %v", info.Metadata)
	}
}

func TestHandleToolsCall_ImageDimensions(t *testing.T) {
	s := New()
	imgPath := createTestImageFile(t, 200, 150)

	var dims Dimensions
	toolResult(t, callTool(t, s, "image_dimensions", map[string]interface{}{"path": imgPath}), &dims)
	if dims.Width != 200 || dims.Height != 150 {
		t.Errorf("got %dx%d, want 200x150", dims.Width, dims.Height)
	}
}

func TestHandleToolsCall_ImageCrop(t *testing.T) {
	s := New()
	imgPath := createTestImageFile(t, 100, 80)

	tests := []struct {
		name         string
		args         map[string]interface{}
		wantW, wantH int
	}{
		{"plain", map[string]interface{}{"x1": 10, "y1": 0, "x2": 60, "y2": 40}, 50, 40},
		{"scaled", map[string]interface{}{"x1": 0, "y1": 0, "x2": 20, "y2": 10, "scale": 2.5}, 50, 25},
		{"jpeg output", map[string]interface{}{"x1": 0, "y1": 0, "x2": 16, "y2": 16, "format": "jpeg", "quality": 70}, 16, 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.args["path"] = imgPath
			var r ImageResult
			toolResult(t, callTool(t, s, "image_crop", tt.args), &r)
			img := resultImage(t, r)
			if r.Width != tt.wantW || r.Height != tt.wantH {
				t.Errorf("got %dx%d, want %dx%d", r.Width, r.Height, tt.wantW, tt.wantH)
			}
			if c := rgbaAt(img, 2, 2); c.R < 200 || c.G > 60 {
				t.Errorf("top-left of crop: got %v, want red", c)
			}
		})
	}

	// The cached image is untouched by the crops above.
	var dims Dimensions
	toolResult(t, callTool(t, s, "image_dimensions", map[string]interface{}{"path": imgPath}), &dims)
	if dims.Width != 100 || dims.Height != 80 {
		t.Errorf("cached image changed to %dx%d", dims.Width, dims.Height)
	}
}

func TestHandleToolsCall_ImageCrop_Invalid(t *testing.T) {
	s := New()
	imgPath := createTestImageFile(t, 100, 80)

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"out of bounds", map[string]interface{}{"x1": 50, "y1": 0, "x2": 150, "y2": 40}},
		{"inverted", map[string]interface{}{"x1": 60, "y1": 0, "x2": 10, "y2": 40}},
		{"empty", map[string]interface{}{"x1": 10, "y1": 10, "x2": 10, "y2": 40}},
		{"negative scale", map[string]interface{}{"x1": 0, "y1": 0, "x2": 10, "y2": 10, "scale": -1}},
		{"unknown format", map[string]interface{}{"x1": 0, "y1": 0, "x2": 10, "y2": 10, "format": "xcf"}},
		{"wrong type", map[string]interface{}{"x1": "left", "y1": 0, "x2": 10, "y2": 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.args["path"] = imgPath
			expectError(t, callTool(t, s, "image_crop", tt.args), -32602)
		})
	}
}

func TestHandleToolsCall_ImageCropQuadrant(t *testing.T) {
	s := New()
	imgPath := createTestImageFile(t, 100, 80)

	var r ImageResult
	toolResult(t, callTool(t, s, "image_crop_quadrant", map[string]interface{}{"path": imgPath, "region": "bottom-left"}), &r)
	img := resultImage(t, r)
	if r.Width != 50 || r.Height != 40 {
		t.Errorf("got %dx%d, want 50x40", r.Width, r.Height)
	}
	if c := rgbaAt(img, 25, 20); c != (color.NRGBA{0, 0, 255, 255}) {
		t.Errorf("bottom-left: got %v, want blue", c)
	}

	expectError(t, callTool(t, s, "image_crop_quadrant", map[string]interface{}{"path": imgPath, "region": "middle"}), -32602)
}

func TestHandleToolsCall_ImageResize(t *testing.T) {
	s := New()
	imgPath := createTestImageFile(t, 100, 80)

	tests := []struct {
		name         string
		args         map[string]interface{}
		wantW, wantH int
	}{
		{"both", map[string]interface{}{"width": 30, "height": 70}, 30, 70},
		{"width keeps aspect", map[string]interface{}{"width": 50}, 50, 40},
		{"height keeps aspect", map[string]interface{}{"height": 160, "filter": "nearest"}, 200, 160},
		{"bilinear", map[string]interface{}{"width": 10, "height": 10, "filter": "bilinear"}, 10, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.args["path"] = imgPath
			var r ImageResult
			toolResult(t, callTool(t, s, "image_resize", tt.args), &r)
			resultImage(t, r)
			if r.Width != tt.wantW || r.Height != tt.wantH {
				t.Errorf("got %dx%d, want %dx%d", r.Width, r.Height, tt.wantW, tt.wantH)
			}
		})
	}

	expectError(t, callTool(t, s, "image_resize", map[string]interface{}{"path": imgPath}), -32602)
	expectError(t, callTool(t, s, "image_resize", map[string]interface{}{"path": imgPath, "width": 10, "filter": "bicubic"}), -32602)
	expectError(t, callTool(t, s, "image_resize", map[string]interface{}{"path": imgPath, "width": -10, "height": 5}), -32602)
}

func TestHandleToolsCall_ImageRotateAndFlip(t *testing.T) {
	s := New()
	imgPath := createTestImageFile(t, 100, 80)

	var r ImageResult
	toolResult(t, callTool(t, s, "image_rotate", map[string]interface{}{"path": imgPath, "degrees": 90}), &r)
	img := resultImage(t, r)
	if r.Width != 80 || r.Height != 100 {
		t.Errorf("rotate: got %dx%d, want 80x100", r.Width, r.Height)
	}
	// Clockwise: the blue bottom-left quadrant ends up top-left.
	if c := rgbaAt(img, 5, 5); c != (color.NRGBA{0, 0, 255, 255}) {
		t.Errorf("rotate: top-left got %v, want blue", c)
	}
	expectError(t, callTool(t, s, "image_rotate", map[string]interface{}{"path": imgPath, "degrees": 45}), -32602)

	toolResult(t, callTool(t, s, "image_flip", map[string]interface{}{"path": imgPath, "direction": "horizontal"}), &r)
	if c := rgbaAt(resultImage(t, r), 5, 5); c != (color.NRGBA{0, 255, 0, 255}) {
		t.Errorf("flip: top-left got %v, want green", c)
	}
	toolResult(t, callTool(t, s, "image_flip", map[string]interface{}{"path": imgPath, "direction": "vertical"}), &r)
	if c := rgbaAt(resultImage(t, r), 5, 5); c != (color.NRGBA{0, 0, 255, 255}) {
		t.Errorf("flip vertical: top-left got %v, want blue", c)
	}
	expectError(t, callTool(t, s, "image_flip", map[string]interface{}{"path": imgPath, "direction": "diagonal"}), -32602)
}

func TestHandleToolsCall_ImageAdjust(t *testing.T) {
	s := New()
	imgPath := createTestImageFile(t, 20, 20)

	var r ImageResult
	toolResult(t, callTool(t, s, "image_adjust", map[string]interface{}{"path": imgPath, "invert": true}), &r)
	if c := rgbaAt(resultImage(t, r), 0, 0); c != (color.NRGBA{0, 255, 255, 255}) {
		t.Errorf("invert: got %v, want cyan", c)
	}

	toolResult(t, callTool(t, s, "image_adjust", map[string]interface{}{"path": imgPath, "brightness": -55, "grayscale": true}), &r)
	// Red at 200,0,0 then luma 0.299*200.
	if c := rgbaAt(resultImage(t, r), 0, 0); c != (color.NRGBA{60, 60, 60, 255}) {
		t.Errorf("brightness+grayscale: got %v, want {60 60 60 255}", c)
	}

	toolResult(t, callTool(t, s, "image_adjust", map[string]interface{}{"path": imgPath, "gamma": 1.5, "saturation": 20, "hue": 30, "contrast": 10, "sepia": true}), &r)
	resultImage(t, r)

	expectError(t, callTool(t, s, "image_adjust", map[string]interface{}{"path": imgPath}), -32602)
	expectError(t, callTool(t, s, "image_adjust", map[string]interface{}{"path": imgPath, "brightness": 300}), -32602)
}

func TestHandleToolsCall_ImageFilter(t *testing.T) {
	s := New()
	imgPath := createTestImageFile(t, 40, 40)

	for _, f := range []string{"blur", "sharpen", "edge", "gaussian", "canny"} {
		t.Run(f, func(t *testing.T) {
			var r ImageResult
			toolResult(t, callTool(t, s, "image_filter", map[string]interface{}{"path": imgPath, "filter": f}), &r)
			resultImage(t, r)
			if r.Width != 40 || r.Height != 40 {
				t.Errorf("got %dx%d, want 40x40", r.Width, r.Height)
			}
		})
	}

	var r ImageResult
	toolResult(t, callTool(t, s, "image_filter", map[string]interface{}{"path": imgPath, "filter": "canny"}), &r)
	img := resultImage(t, r)
	if c := rgbaAt(img, 5, 5); c != (color.NRGBA{0, 0, 0, 255}) {
		t.Errorf("canny inside a flat quadrant: got %v, want black", c)
	}

	expectError(t, callTool(t, s, "image_filter", map[string]interface{}{"path": imgPath, "filter": "emboss"}), -32602)
	expectError(t, callTool(t, s, "image_filter", map[string]interface{}{"path": imgPath, "filter": "canny", "threshold_low": 200, "threshold_high": 100}), -32602)

	t.Run("canny accepts an explicit zero low threshold", func(t *testing.T) {
		var r ImageResult
		toolResult(t, callTool(t, s, "image_filter", map[string]interface{}{"path": imgPath, "filter": "canny", "threshold_low": 0, "threshold_high": 30}), &r)
		img := resultImage(t, r)
		found := false
		for x := 0; x < 40; x++ {
			if rgbaAt(img, x, 5) == (color.NRGBA{255, 255, 255, 255}) {
				found = true
				break
			}
		}
		if !found {
			t.Error("no edge found across the quadrant boundary")
		}
	})
}

func TestHandleToolsCall_ImageSampleColor(t *testing.T) {
	s := New()
	imgPath := createTestImageFile(t, 100, 100)

	var result imaging.ColorResult
	toolResult(t, callTool(t, s, "image_sample_color", map[string]interface{}{"path": imgPath, "x": 75, "y": 25}), &result)
	if result.Hex != "#00FF00" {
		t.Errorf("Hex: got %s, want #00FF00", result.Hex)
	}

	expectError(t, callTool(t, s, "image_sample_color", map[string]interface{}{"path": imgPath, "x": 100, "y": 0}), -32602)
}

func TestHandleToolsCall_ImageSampleColorsMulti(t *testing.T) {
	s := New()
	imgPath := createTestImageFile(t, 100, 100)

	var result imaging.MultiColorResult
	toolResult(t, callTool(t, s, "image_sample_colors_multi", map[string]interface{}{
		"path": imgPath,
		"points": []map[string]interface{}{
			{"x": 25, "y": 25, "label": "red"},
			{"x": 75, "y": 75, "label": "white"},
		},
	}), &result)

	if len(result.Samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(result.Samples))
	}
	if result.Samples[0].Label != "red" || result.Samples[0].Color.Hex != "#FF0000" {
		t.Errorf("sample 0: %+v", result.Samples[0])
	}
	if result.Samples[1].Color.Hex != "#FFFFFF" {
		t.Errorf("sample 1: %+v", result.Samples[1])
	}
}

func TestHandleToolsCall_ImageDominantColors(t *testing.T) {
	s := New()
	imgPath := createTestImageFile(t, 100, 100)

	var result imaging.DominantColorsResult
	toolResult(t, callTool(t, s, "image_dominant_colors", map[string]interface{}{"path": imgPath}), &result)
	if len(result.Colors) != 4 {
		t.Errorf("expected 4 colors with the default count, got %d", len(result.Colors))
	}

	toolResult(t, callTool(t, s, "image_dominant_colors", map[string]interface{}{
		"path":   imgPath,
		"count":  3,
		"region": map[string]interface{}{"x1": 50, "y1": 50, "x2": 100, "y2": 100},
	}), &result)
	if len(result.Colors) != 1 || result.Colors[0].Hex != "#F0F0F0" {
		t.Errorf("bottom-right region: got %+v", result.Colors)
	}
}

func TestHandleToolsCall_ImageConvert(t *testing.T) {
	s := New()
	imgPath := createTestImageFile(t, 30, 20)

	var r ImageResult
	toolResult(t, callTool(t, s, "image_convert", map[string]interface{}{"path": imgPath, "format": "jpeg", "quality": 60}), &r)
	if r.MimeType != "image/jpeg" {
		t.Errorf("MimeType: got %s", r.MimeType)
	}
	resultImage(t, r)

	out := filepath.Join(t.TempDir(), "converted.bmp")
	var cr ConvertResult
	toolResult(t, callTool(t, s, "image_convert", map[string]interface{}{"path": imgPath, "output_path": out}), &cr)
	if cr.MimeType != "image/bmp" || cr.Width != 30 || cr.Bytes == 0 {
		t.Errorf("unexpected result %+v", cr)
	}
	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	defer f.Close()
	written, err := bmp.Decode(f)
	if err != nil {
		t.Fatalf("output is not a BMP: %v", err)
	}
	if written.Bounds().Dx() != 30 || written.Bounds().Dy() != 20 {
		t.Errorf("written image is %v", written.Bounds())
	}

	webp := filepath.Join(t.TempDir(), "converted.webp")
	expectError(t, callTool(t, s, "image_convert", map[string]interface{}{"path": imgPath, "output_path": webp}), -32000)
	expectError(t, callTool(t, s, "image_convert", map[string]interface{}{"path": imgPath, "output_path": filepath.Join(t.TempDir(), "noext")}), -32602)
}

func TestHandleToolsCall_Errors(t *testing.T) {
	s := New()

	expectError(t, callTool(t, s, "image_load", map[string]interface{}{"path": "/nonexistent/image.png"}), -32000)
	expectError(t, callTool(t, s, "image_dimensions", map[string]interface{}{"path": "/nonexistent/image.png"}), -32000)
	expectError(t, callTool(t, s, "nonexistent_tool", map[string]interface{}{}), -32602)

	bad := filepath.Join(t.TempDir(), "bad.png")
	if err := os.WriteFile(bad, []byte("\x89PNG\r\n\x1a\nnot really"), 0o644); err != nil {
		t.Fatal(err)
	}
	expectError(t, callTool(t, s, "image_load", map[string]interface{}{"path": bad}), -32000)

	resp := s.handleRequest(&MCPRequest{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: json.RawMessage(`"not an object"`)})
	expectError(t, resp, -32602)
}
