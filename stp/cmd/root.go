// root.go
//
// Package cmd holds the stpd command line
package cmd

import (
	"fmt"
	"github.com/oshothebig/l2/stp/config"
	stp "github.com/oshothebig/l2/stp/protocol"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"os"
)

type rootOptions struct {
	config   string
	logLevel string
}

func NewRoot() *cobra.Command {
	o := &rootOptions{}
	root := &cobra.Command{
		Use:   "stpd",
		Short: "Spanning tree bridge daemon and network simulator",
		Args:  cobra.NoArgs,
		// errors are printed once by Execute
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&o.config, "config", "c", "stpd.yaml", "configuration file")
	root.PersistentFlags().StringVar(&o.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	root.AddCommand(
		newRun(o),
		newSimulate(o),
		newCheck(o),
	)
	return root
}

func Execute() {
	if err := NewRoot().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// load reads the config file and builds the logger it asks for, the logger
// also becomes the protocol package default
func (o *rootOptions) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.config)
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	log, err := newLogger(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	stp.SetLogger(log)
	return cfg, log, nil
}

func newLogger(c config.Log) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, errors.Wrap(err, "log level")
	}
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	log, err := zc.Build()
	if err != nil {
		return nil, errors.Wrap(err, "building logger")
	}
	return log, nil
}
