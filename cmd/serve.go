package main

import (
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/osint-investigator/internal/report"
	"github.com/sells-group/osint-investigator/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the investigation HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		env, err := initPipeline(ctx, cfg, "serve", prometheus.DefaultRegisterer)
		if err != nil {
			return err
		}
		defer env.Close()

		reports, err := report.NewFileBuilder(cfg.Report)
		if err != nil {
			return err
		}

		srv, err := server.New(server.Config{
			Jobs:        env.Manager,
			Reports:     reports,
			Readiness:   env.Readiness(cfg),
			CORSOrigins: cfg.Server.CORSOrigins,
		})
		if err != nil {
			return err
		}

		go env.Manager.RunJanitor(ctx)

		err = srv.ListenAndServe(ctx, cfg.Server.Port)

		zap.L().Info("waiting for running jobs", zap.Int("running", env.Manager.Running()))
		env.Manager.Wait()
		return err
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
