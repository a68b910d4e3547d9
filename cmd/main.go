package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"dag-ledger/config"
	"dag-ledger/logger"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ledger",
	Short: "DAG ledger replica and network simulator",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config/config.yaml", "Config file, empty for defaults only")
	rootCmd.PersistentFlags().StringP("log_level", "v", "info", "Logging verbosity: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log_file", "", "Log file, stdout when empty")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log_level"))
	_ = viper.BindPFlag("log.app_log_file", rootCmd.PersistentFlags().Lookup("log_file"))

	rootCmd.AddCommand(serveCmd, simulateCmd)
}

// setup loads the config and starts the logger. Every command calls it first.
func setup() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper(), cfgFile)
	if err != nil {
		return nil, err
	}
	if err := logger.InitLogger(cfg.Log.AppLogFile, cfg.Log.Level); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
}
