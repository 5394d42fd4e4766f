package main

import (
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ironsheep/rastercodec/internal/codec"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// logLevelEnv sets the log level when --log-level is not given.
const logLevelEnv = "RASTERCODEC_LOG_LEVEL"

var rootCmd = &cobra.Command{
	Use:   "rastercodec",
	Short: "Decode, inspect and transform JPEG, PNG and other raster images",
	Long: `rastercodec decodes baseline JPEG and PNG with its own decoders (GIF, WebP,
BMP and TIFF through library decoders), applies geometric and color
operations, and re-encodes the result. "serve" exposes the same operations as
MCP tools over stdin/stdout.`,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("log-level", "", "Log level (panic, fatal, error, warn, info, debug, trace); default from "+logLevelEnv+" or warn")
	pf.Int("max-pixels", 0, "Largest width*height to decode (default from "+codec.MaxPixelsEnv+" or 67108864)")
	pf.Bool("auto-orient", false, "Apply the EXIF orientation after decoding")
	pf.Bool("no-crc", false, "Skip PNG CRC and zlib checksum verification")
}

// setupLogging sends logrus output to stderr; stdout belongs to the MCP
// protocol and to command output.
func setupLogging(cmd *cobra.Command, args []string) error {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	level, _ := cmd.Flags().GetString("log-level")
	if level == "" {
		level = os.Getenv(logLevelEnv)
	}
	if level == "" {
		level = "warn"
	}
	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	log.SetLevel(lvl)
	log.WithFields(log.Fields{"version": Version, "commit": GitCommit}).Debug("rastercodec starting")
	return nil
}

// decodeOptions collects the persistent decoding flags.
func decodeOptions(cmd *cobra.Command) []codec.Option {
	var opts []codec.Option
	if n, _ := cmd.Flags().GetInt("max-pixels"); n > 0 {
		opts = append(opts, codec.WithMaxPixels(n))
	}
	if on, _ := cmd.Flags().GetBool("auto-orient"); on {
		opts = append(opts, codec.WithAutoOrient(true))
	}
	if off, _ := cmd.Flags().GetBool("no-crc"); off {
		opts = append(opts, codec.WithCRCCheck(false))
	}
	return opts
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
