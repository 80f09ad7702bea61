// run.go
package cmd

import (
	"context"
	"github.com/oshothebig/l2/stp/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"os"
	"os/signal"
	"syscall"
)

func newRun(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bridge on the configured host interfaces",
		Long: `Run binds every configured port to a host interface and runs the
spanning tree until interrupted.  SIGHUP logs the current port roles.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cfg, log, err := o.load()
			if err != nil {
				return err
			}
			defer log.Sync()

			s, err := server.New(server.Options{Config: cfg, Logger: log})
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go logStatusOnHup(ctx, s, log)

			log.Info("starting stpd", zap.String("config", o.config))
			if err := s.Run(ctx); err != nil {
				log.Error("stpd stopped", zap.Error(err))
				return err
			}
			log.Info("stpd stopped")
			return nil
		},
	}
}

func logStatusOnHup(ctx context.Context, s *server.Server, log *zap.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			ports, err := s.Status(ctx)
			if err != nil {
				return
			}
			for _, p := range ports {
				log.Info("port status", zap.String("port", p.Name), zap.Int32("ifIndex", int32(p.Id)),
					zap.Stringer("role", p.Role), zap.Stringer("state", p.State))
			}
		}
	}
}
