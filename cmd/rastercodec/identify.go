package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ironsheep/rastercodec/internal/codec"
)

var identifyCmd = &cobra.Command{
	Use:   "identify [file]",
	Short: "Print dimensions, format and decoder metadata of an image",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentify,
}

func init() {
	identifyCmd.Flags().Bool("header-only", false, "Read only the header; skip pixel decoding")
	rootCmd.AddCommand(identifyCmd)
}

func runIdentify(cmd *cobra.Command, args []string) error {
	headerOnly, _ := cmd.Flags().GetBool("header-only")
	return identify(cmd.OutOrStdout(), args[0], headerOnly, decodeOptions(cmd)...)
}

func identify(w io.Writer, path string, headerOnly bool, opts ...codec.Option) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	fmt.Fprintf(w, "File:       %s\n", path)
	fmt.Fprintf(w, "File size:  %d bytes (%.1f MB)\n", len(data), float64(len(data))/(1024*1024))

	if headerOnly {
		cfg, err := codec.DecodeConfig(data, "")
		if err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		fmt.Fprintf(w, "Format:     %s\n", cfg.Format)
		fmt.Fprintf(w, "Dimensions: %d x %d\n", cfg.Width, cfg.Height)
		return nil
	}

	img, err := codec.Decode(data, "", opts...)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	fmt.Fprintf(w, "Format:     %s\n", codec.DetectMIME(data))
	fmt.Fprintf(w, "Dimensions: %d x %d\n", img.Width(), img.Height())

	keys := make([]string, 0, len(img.Metadata))
	for k := range img.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > 0 {
		fmt.Fprintln(w, "Metadata:")
	}
	for _, k := range keys {
		fmt.Fprintf(w, "  %-14s %s\n", k+":", img.Metadata[k])
	}
	return nil
}
