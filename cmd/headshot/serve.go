package main

import (
	"github.com/spf13/cobra"

	"github.com/menta2k/headshot/pkg/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the interactive crop editor over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}

		// A detector that fails to load keeps the server up; sessions
		// report the failure to the user.
		detector, loadErr := newDetector(cfg)
		if loadErr != nil {
			logger.Error("face detection model failed to load", "error", loadErr)
		}

		factory, err := sessionFactory(cfg, detector, loadErr, logger)
		if err != nil {
			return err
		}

		srv := server.New(factory, serverOptions(cfg, logger))
		return srv.Start(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", "", "listen address (default: server.addr from config)")
	rootCmd.AddCommand(serveCmd)
}
