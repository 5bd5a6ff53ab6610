package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/bngseg/collector/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "BNGSEG"

// execute runs the CLI and returns the process exit code.
func execute(args []string) int {
	ctx, intr := withInterrupts(context.Background())
	defer intr.stop()

	root := newRootCmd(intr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func newRootCmd(intr *interrupter) *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:           "bngseg",
		Short:         "Capture paired base and annotated images from BeamNG.tech",
		Version:       fmt.Sprintf("%s (built %s)", Version, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd, cfgFile)
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./"+config.FileName+")")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("logs-dir", "./logs", "directory for session log files")

	root.AddCommand(
		newCollectCmd(intr),
		newRecordCmd(intr),
		newPlanCmd(),
		newInspectCmd(),
		newCaptureCmd(intr),
	)
	return root
}

// flagKeys maps flag names to the config keys they override.
var flagKeys = map[string]string{
	"log-level": "logLevel",
	"logs-dir":  "logsDir",
	"count":     "sample.count",
	"radius":    "sample.radius",
	"seed":      "sample.seed",
	"interval":  "record.interval",
	"countdown": "record.countdown",
	"out-dir":   "capture.outputDir",
	"format":    "capture.format",
	"map":       "scenario.map",
	"storage":   "storage.type",
	"upload":    "api.upload",
}

// initConfig reads the config file and environment variables, then binds
// the command's flags over them.
func initConfig(cmd *cobra.Command, cfgFile string) error {
	config.SetDefaults()

	if cfgFile != "" {
		if err := config.LoadFile(cfgFile); err != nil {
			return err
		}
	} else if err := config.Load("."); err != nil && !config.IsNotFound(err) {
		return err
	}
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintln(os.Stderr, "Using config file:", used)
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	return bindFlags(cmd, viper.GetViper())
}

// bindFlags binds each flag of cmd to its config key, so a flag set on the
// command line wins over the config file and environment.
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return
		}
		if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
			bindErr = fmt.Errorf("could not bind flag %s: %w", f.Name, err)
		}
	})
	return bindErr
}
