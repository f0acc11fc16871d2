package main

import (
	"fmt"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/spf13/cobra"

	"laundryonline/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database tables and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		gormDB, err := db.Init(&cfg.Database)
		if err != nil {
			return err
		}
		sqlDB, err := gormDB.DB()
		if err == nil {
			sqlDB.Close()
		}
		logger.Println("migrations applied")
		return nil
	},
}

var vapidKeysCmd = &cobra.Command{
	Use:   "vapid-keys",
	Short: "Generate a VAPID key pair for the push section of the config",
	RunE: func(cmd *cobra.Command, args []string) error {
		private, public, err := webpush.GenerateVAPIDKeys()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "vapid_public_key: %q\nvapid_private_key: %q\n", public, private)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd, vapidKeysCmd)
}
