package main

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// @title           Catering Support Chat API
// @version         1.0
// @description     Realtime support chat between catering customers and staff.

// @host            localhost:8000
// @BasePath        /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

var (
	logLevel   = "info"
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "caterchat",
	Short: "Support chat server for the catering storefront",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := log.ParseLevel(logLevel)
		if err != nil {
			log.WithError(err).Fatal("cannot parse log-level")
		}
		log.SetLevel(level)
		log.Debug("debug logging enabled")
	},
}

func main() {
	// Millisecond precision in timestamps helps when following message fan-out.
	formatter := new(log.TextFormatter)
	formatter.TimestampFormat = "2006-01-02T15:04:05.999Z07:00"
	formatter.FullTimestamp = true
	log.SetFormatter(formatter)

	rootCmd.AddCommand(
		NewServeCommand(),
		NewMigrateCommand(),
		NewCreateUserCommand(),
	)

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Log level (trace,debug,info,warn,error) (default info)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Optional YAML config file; environment variables and flags take precedence")

	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Fatal("could not execute root command")
	}
}
