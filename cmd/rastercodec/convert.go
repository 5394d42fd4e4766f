package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ironsheep/rastercodec/internal/codec"
	"github.com/ironsheep/rastercodec/internal/imaging"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Decode an image, transform it and write it in another format",
	Long: `Decode the input, apply the requested operations in the order resize,
rotate, flip, filter, grayscale, and encode the result. The output format
follows --format or the output file extension.`,
	Args: cobra.NoArgs,
	RunE: runConvert,
}

func init() {
	f := convertCmd.Flags()
	f.StringP("input", "i", "", "Input image file")
	f.StringP("output", "o", "", "Output image file")
	f.String("format", "", "Output format (png, jpeg, gif, tiff, bmp); default from the output extension")
	f.String("resize", "", "Resize to WxH; use 0 for one side to keep the aspect ratio")
	f.String("resample", "lanczos", "Resampling filter (nearest, bilinear, catmullrom, lanczos)")
	f.Int("rotate", 0, "Rotate clockwise by a multiple of 90 degrees")
	f.String("flip", "", "Flip h (horizontal) or v (vertical)")
	f.String("filter", "", "Apply blur, sharpen or edge")
	f.Bool("grayscale", false, "Convert to grayscale")
	f.Int("quality", imaging.DefaultJPEGQuality, "JPEG quality (1-100)")
	convertCmd.MarkFlagRequired("input")
	convertCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(convertCmd)
}

// convertOptions are the transformations convert applies.
type convertOptions struct {
	Format    string
	Resize    string
	Resample  string
	Rotate    int
	Flip      string
	Filter    string
	Grayscale bool
	Quality   int
}

func runConvert(cmd *cobra.Command, args []string) error {
	inputPath, _ := cmd.Flags().GetString("input")
	outputPath, _ := cmd.Flags().GetString("output")

	var o convertOptions
	o.Format, _ = cmd.Flags().GetString("format")
	o.Resize, _ = cmd.Flags().GetString("resize")
	o.Resample, _ = cmd.Flags().GetString("resample")
	o.Rotate, _ = cmd.Flags().GetInt("rotate")
	o.Flip, _ = cmd.Flags().GetString("flip")
	o.Filter, _ = cmd.Flags().GetString("filter")
	o.Grayscale, _ = cmd.Flags().GetBool("grayscale")
	o.Quality, _ = cmd.Flags().GetInt("quality")

	n, err := convert(inputPath, outputPath, o, decodeOptions(cmd)...)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", outputPath, n)
	return nil
}

// convert runs the whole pipeline and returns the number of bytes written.
func convert(inputPath, outputPath string, o convertOptions, opts ...codec.Option) (int, error) {
	mime := codec.MIMEFromPath(outputPath)
	if o.Format != "" {
		f, err := imaging.ParseFormat(o.Format)
		if err != nil {
			return 0, err
		}
		mime = imaging.MIMEType(f)
	}
	if mime == "" {
		return 0, fmt.Errorf("cannot infer an output format from %s; use --format", outputPath)
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		return 0, fmt.Errorf("reading input: %w", err)
	}
	img, err := codec.Decode(data, "", opts...)
	if err != nil {
		return 0, fmt.Errorf("decoding %s: %w", inputPath, err)
	}

	if err := transform(img, o); err != nil {
		return 0, err
	}

	out, err := codec.Encode(img, mime, o.Quality)
	if err != nil {
		return 0, fmt.Errorf("encoding: %w", err)
	}
	if err := os.WriteFile(outputPath, out, 0o644); err != nil {
		return 0, fmt.Errorf("writing output: %w", err)
	}
	log.WithFields(log.Fields{
		"input":  inputPath,
		"output": outputPath,
		"width":  img.Width(),
		"height": img.Height(),
		"mime":   mime,
	}).Info("converted")
	return len(out), nil
}

// transform applies the operations selected in o, in a fixed order.
func transform(img *imaging.Image, o convertOptions) error {
	if o.Resize != "" {
		w, h, err := parseSize(o.Resize)
		if err != nil {
			return err
		}
		switch {
		case w == 0:
			w = max(1, img.Width()*h/img.Height())
		case h == 0:
			h = max(1, img.Height()*w/img.Width())
		}
		filter, err := imaging.ParseFilter(o.Resample)
		if err != nil {
			return err
		}
		if err := img.Resize(w, h, filter); err != nil {
			return fmt.Errorf("resize: %w", err)
		}
	}
	if o.Rotate != 0 {
		if err := img.Rotate(o.Rotate); err != nil {
			return fmt.Errorf("rotate: %w", err)
		}
	}
	switch strings.ToLower(o.Flip) {
	case "":
	case "h", "horizontal":
		img.FlipH()
	case "v", "vertical":
		img.FlipV()
	default:
		return fmt.Errorf("unknown flip direction %q (want h or v)", o.Flip)
	}
	switch strings.ToLower(o.Filter) {
	case "":
	case "blur":
		img.Blur()
	case "sharpen":
		img.Sharpen()
	case "edge":
		img.EdgeDetect()
	default:
		return fmt.Errorf("unknown filter %q (want blur, sharpen or edge)", o.Filter)
	}
	if o.Grayscale {
		img.Grayscale()
	}
	return nil
}

// parseSize parses "WxH". Either side may be 0 but not both.
func parseSize(s string) (int, int, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid size %q (want WxH)", s)
	}
	w, err := strconv.Atoi(ws)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid width in %q: %w", s, err)
	}
	h, err := strconv.Atoi(hs)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid height in %q: %w", s, err)
	}
	if w < 0 || h < 0 || w == 0 && h == 0 {
		return 0, 0, fmt.Errorf("invalid size %q", s)
	}
	return w, h, nil
}
