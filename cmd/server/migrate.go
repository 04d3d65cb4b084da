package main

import (
	"github.com/spf13/cobra"

	log "github.com/sirupsen/logrus"
)

func NewMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Creates or upgrades the chat schema.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			// openDB migrates as part of opening.
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			log.WithField("driver", cfg.DBDriver).Info("schema is up to date")
			return db.Close()
		},
	}
	cmd.Flags().String("db-driver", "", "Database driver: postgres or sqlite")
	return cmd
}
