package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mihaimyh/subsync/internal/config"
	gormstore "github.com/mihaimyh/subsync/storage/gorm"
	"github.com/mihaimyh/subsync/storage/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [up|down|status|version|redo|reset] [args...]",
	Short: "Manage the users table schema",
	Long: `Runs the bundled goose migrations against DATABASE_URL for the postgres store.
The gorm store supports "up" only, which auto-migrates the users table.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := config.LoadStore(envFiles()...)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		command := args[0]

		switch sc.Backend {
		case config.StorePostgres:
			pgConfig := postgres.DefaultConfig()
			pgConfig.ConnectionString = sc.DatabaseURL.Value()
			pgConfig.Table = sc.Table
			store, err := postgres.New(ctx, pgConfig)
			if err != nil {
				return err
			}
			defer store.Close()
			return store.Migrate(ctx, command, args[1:]...)

		case config.StoreGorm:
			if command != "up" {
				return fmt.Errorf("gorm store supports only \"up\", got %q", command)
			}
			db, err := gormstore.Open(sc.GormDriver, sc.DatabaseURL.Value())
			if err != nil {
				return err
			}
			store, err := gormstore.New(db, sc.Table)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			if err := store.AutoMigrate(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrated table %s\n", sc.Table)
			return nil

		default:
			return fmt.Errorf("store %q has no schema to migrate", sc.Backend)
		}
	},
}
