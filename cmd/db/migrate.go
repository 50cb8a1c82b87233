package main

import (
	"fmt"

	"github.com/garrettladley/whoopweb/internal/config"
	"github.com/garrettladley/whoopweb/internal/migrations"
	"github.com/garrettladley/whoopweb/internal/migrations/postgres"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending session store migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := readStore(cmd)
			if err != nil {
				return err
			}

			var applied []string
			switch cfg.Session.Store {
			case config.StorePostgres:
				pool, err := openPostgres(ctx, cfg)
				if err != nil {
					return err
				}
				defer pool.Close()

				applied, err = postgres.Apply(ctx, pool)
				if err != nil {
					return fmt.Errorf("failed to apply migrations: %w", err)
				}
			case config.StoreSQLite:
				db, err := openSQLite(cfg)
				if err != nil {
					return err
				}
				defer func() {
					_ = db.Close()
				}()

				applied, err = migrations.Apply(ctx, db)
				if err != nil {
					return fmt.Errorf("failed to apply migrations: %w", err)
				}
			default:
				return fmt.Errorf("store %q has no migrations", cfg.Session.Store)
			}

			for _, name := range applied {
				fmt.Printf("Applied %s\n", name)
			}
			fmt.Println("Migrations applied successfully")
			return nil
		},
	}
}
