// Package cli implements the checkpoint administration commands.
package cli

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/edukit/coursegen/internal/control"
	"github.com/edukit/coursegen/internal/core/config"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "admin",
	Short: "Coursegen checkpoint administration",
	Long:  `Inspect and reset the persisted checkpoint state of the course generator.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
}

// openBackend loads the configuration and connects the checkpoint backend
// the generator itself would use.
func openBackend() (*control.Backend, error) {
	_ = godotenv.Load()
	stylelog.InitDefault()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	return control.OpenBackend(control.ConfigFrom(cfg))
}
