package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ironsheep/rastercodec/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP tool server on stdin/stdout",
	Long: `Run the MCP tool server. Requests are read from stdin one JSON-RPC message
per line and responses written to stdout. Configure it in your MCP client.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(decodeOptions(cmd)...)
	srv.Version = Version

	log.WithFields(log.Fields{"version": Version, "built": BuildTime}).Info("MCP server listening on stdio")
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
