package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/odin-workspace/ms-go-billing/app/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database schema migrations",
	Run:   runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(_ *cobra.Command, _ []string) {
	_, db, cleanup := mustOpenDatabase()
	defer cleanup()

	if err := migrations.Up(db); err != nil {
		logrus.WithError(err).Fatal("Migration failed")
	}
}
