package server

import "github.com/ironsheep/rastercodec/internal/imaging"

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

type schema = map[string]interface{}

func object(props schema, required ...string) schema {
	return schema{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func prop(typ, description string) schema {
	return schema{"type": typ, "description": description}
}

func propDefault(typ, description string, def interface{}) schema {
	return schema{"type": typ, "description": description, "default": def}
}

func propEnum(description string, values []string) schema {
	return schema{"type": "string", "enum": values, "description": description}
}

var (
	pathProp = prop("string", "Absolute path to the image file")

	// Properties shared by every tool that returns an image.
	outputProps = schema{
		"format":  propEnum("Output encoding (default png)", []string{"png", "jpeg", "gif", "tiff", "bmp"}),
		"quality": propDefault("integer", "JPEG quality 1-100 (default 90)", imaging.DefaultJPEGQuality),
	}

	regionProp = schema{
		"type": "object",
		"properties": schema{
			"x1": schema{"type": "integer"},
			"y1": schema{"type": "integer"},
			"x2": schema{"type": "integer"},
			"y2": schema{"type": "integer"},
		},
		"description": "Optional region to analyze. If omitted, analyzes entire image.",
	}
)

// withOutput merges outputProps into props.
func withOutput(props schema) schema {
	for k, v := range outputProps {
		props[k] = v
	}
	return props
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Basic Image Information
		{
			Name:        "image_load",
			Description: "Decode an image file and return its dimensions, format and decoder metadata (bit depth, color type, orientation, text chunks).",
			InputSchema: object(schema{"path": pathProp}, "path"),
		},
		{
			Name:        "image_dimensions",
			Description: "Get the width and height of an image file.",
			InputSchema: object(schema{"path": pathProp}, "path"),
		},

		// Region Operations
		{
			Name:        "image_crop",
			Description: "Crop a rectangular region from an image and return it base64-encoded. Use this to zoom into areas that need detailed examination.",
			InputSchema: object(withOutput(schema{
				"path":  pathProp,
				"x1":    prop("integer", "Left edge X coordinate (0-based)"),
				"y1":    prop("integer", "Top edge Y coordinate (0-based)"),
				"x2":    prop("integer", "Right edge X coordinate (exclusive)"),
				"y2":    prop("integer", "Bottom edge Y coordinate (exclusive)"),
				"scale": propDefault("number", "Optional scale factor (e.g., 2.0 to double size). Default 1.0", 1.0),
			}), "path", "x1", "y1", "x2", "y2"),
		},
		{
			Name:        "image_crop_quadrant",
			Description: "Crop a named region of the image (top-left, top-right, bottom-left, bottom-right, top-half, bottom-half, left-half, right-half, center).",
			InputSchema: object(withOutput(schema{
				"path":   pathProp,
				"region": propEnum("Named region to extract", imaging.RegionNames),
				"scale":  propDefault("number", "Optional scale factor. Default 1.0", 1.0),
			}), "path", "region"),
		},

		// Geometry
		{
			Name:        "image_resize",
			Description: "Resize an image. When only one of width or height is given the other follows the aspect ratio.",
			InputSchema: object(withOutput(schema{
				"path":   pathProp,
				"width":  prop("integer", "Target width in pixels"),
				"height": prop("integer", "Target height in pixels"),
				"filter": schema{
					"type":        "string",
					"enum":        []string{"nearest", "bilinear", "catmullrom", "lanczos"},
					"description": "Resampling filter (default lanczos)",
					"default":     "lanczos",
				},
			}), "path"),
		},
		{
			Name:        "image_rotate",
			Description: "Rotate an image clockwise by a multiple of 90 degrees.",
			InputSchema: object(withOutput(schema{
				"path":    pathProp,
				"degrees": prop("integer", "Clockwise rotation: 90, 180 or 270 (negative values rotate counter-clockwise)"),
			}), "path", "degrees"),
		},
		{
			Name:        "image_flip",
			Description: "Mirror an image horizontally or vertically, or transpose it across the main diagonal.",
			InputSchema: object(withOutput(schema{
				"path":      pathProp,
				"direction": propEnum("Flip direction", []string{"horizontal", "vertical", "transpose"}),
			}), "path", "direction"),
		},

		// Photometric
		{
			Name:        "image_adjust",
			Description: "Apply color adjustments in a fixed order: brightness, contrast, gamma, saturation, hue, grayscale, sepia, invert. Omitted adjustments are skipped.",
			InputSchema: object(withOutput(schema{
				"path":       pathProp,
				"brightness": prop("integer", "Added to each channel, -255 to 255"),
				"contrast":   prop("integer", "Contrast change in percent, -100 to 100"),
				"gamma":      prop("number", "Gamma, above 0 and at most 10; values above 1 brighten midtones"),
				"saturation": prop("integer", "Saturation change in percent, -100 to 500"),
				"hue":        prop("integer", "Hue rotation in degrees, -360 to 360"),
				"grayscale":  prop("boolean", "Convert to BT.601 luma"),
				"sepia":      prop("boolean", "Apply a sepia tone"),
				"invert":     prop("boolean", "Invert the color channels"),
			}), "path"),
		},
		{
			Name:        "image_filter",
			Description: "Apply a convolution filter: 3x3 box blur, sharpen, Laplacian edge detection, Gaussian blur, or a Canny edge map showing only structural lines.",
			InputSchema: object(withOutput(schema{
				"path":           pathProp,
				"filter":         propEnum("Filter to apply", []string{"blur", "sharpen", "edge", "gaussian", "canny"}),
				"radius":         propDefault("number", "Gaussian blur radius (default 2)", 2.0),
				"threshold_low":  propDefault("integer", "Low threshold for Canny edge detection (default 50)", 50),
				"threshold_high": propDefault("integer", "High threshold for Canny edge detection (default 150)", 150),
			}), "path", "filter"),
		},

		// Color Operations
		{
			Name:        "image_sample_color",
			Description: "Get the exact color value at a specific pixel coordinate.",
			InputSchema: object(schema{
				"path": pathProp,
				"x":    prop("integer", "X coordinate (0-based, from left)"),
				"y":    prop("integer", "Y coordinate (0-based, from top)"),
			}, "path", "x", "y"),
		},
		{
			Name:        "image_sample_colors_multi",
			Description: "Get color values at multiple pixel coordinates in a single call.",
			InputSchema: object(schema{
				"path": pathProp,
				"points": schema{
					"type": "array",
					"items": object(schema{
						"x":     schema{"type": "integer"},
						"y":     schema{"type": "integer"},
						"label": prop("string", "Optional label for this point"),
					}, "x", "y"),
					"description": "Array of points to sample",
				},
			}, "path", "points"),
		},
		{
			Name:        "image_dominant_colors",
			Description: "Analyze an image and return the N most dominant colors (color palette extraction).",
			InputSchema: object(schema{
				"path":   pathProp,
				"count":  propDefault("integer", "Number of dominant colors to return (default 5)", 5),
				"region": regionProp,
			}, "path"),
		},

		// Encoding
		{
			Name:        "image_convert",
			Description: "Re-encode an image in another format. Writes to output_path when given, otherwise returns the encoded bytes base64-encoded.",
			InputSchema: object(withOutput(schema{
				"path":        pathProp,
				"output_path": prop("string", "Optional destination file; the format defaults to its extension"),
			}), "path"),
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
