package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/brightpath-energy/fieldsync/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE:  runMigrateUp,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied schema migrations",
	RunE:  runMigrateStatus,
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	RunE:  runMigrateDown,
}

func init() {
	migrateCmd.AddCommand(migrateStatusCmd, migrateDownCmd)
	rootCmd.AddCommand(migrateCmd)
}

// openMigrator opens the database without running migrations.
func openMigrator(dataDir string) (*db.DB, *db.Migrator, error) {
	database, err := db.Open(dataDir)
	if err != nil {
		return nil, nil, err
	}
	return database, db.NewMigrator(database.DB), nil
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	database, migrator, err := openMigrator(cfg.DataDir)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := migrator.Up(); err != nil {
		return err
	}
	version, err := migrator.CurrentVersion()
	if err != nil {
		return err
	}
	fmt.Printf("schema is at version %d\n", version)
	return nil
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	database, migrator, err := openMigrator(cfg.DataDir)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := migrator.Initialize(); err != nil {
		return err
	}
	applied, err := migrator.GetAppliedMigrations()
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Println("no migrations applied")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tDESCRIPTION\tAPPLIED AT")
	for _, m := range applied {
		fmt.Fprintf(w, "%d\t%s\t%s\n", m.Version, m.Description, m.AppliedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func runMigrateDown(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	database, migrator, err := openMigrator(cfg.DataDir)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := migrator.Down(); err != nil {
		return err
	}
	version, err := migrator.CurrentVersion()
	if err != nil {
		return err
	}
	fmt.Printf("rolled back; schema is at version %d\n", version)
	return nil
}
