package main

import (
	"fmt"
	"github.com/spf13/cobra"
	"go-ml.dev/pkg/automl/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"os"
)

var (
	verbose    bool
	configPath string
	storePath  string

	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "automl",
	Short: "Automated preprocessing and training of residual perceptrons on tabular data",
	Long: `automl encodes a CSV dataset, searches hyper-parameters of a residual
multi-layer perceptron under a time and iterations budget, and reports
the best model with its held-out metrics.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		l, err := cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "automl.yaml", "Configuration file")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "Saved models database (default: user cache)")

	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(inspectCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if storePath != "" {
		cfg.Store.Path = storePath
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
