package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"memoir-platform/internal/albums"
	"memoir-platform/pkg/utils"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newSeedAlbumsCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed-albums",
		Short: "Upsert albums from a YAML catalog into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if file == "" {
				file = cfg.Catalog.File
			}
			if file == "" {
				return errors.New("no catalog file: pass --file or set CATALOG_FILE")
			}
			catalog, err := albums.LoadFile(file)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			db, err := utils.OpenPostgres(ctx, cfg.PostgresDSN(), utils.PostgresPoolConfig{MaxOpenConns: cfg.DB.MaxOpenConns})
			if err != nil {
				return err
			}
			defer db.Close()

			// All or nothing: a bad entry leaves the table untouched.
			n := 0
			err = utils.WithTx(ctx, db, nil, func(ctx context.Context, tx utils.Querier) error {
				store := albums.NewPostgresCatalog(tx)
				for _, a := range catalog.All() {
					if _, err := uuid.Parse(a.ID); err != nil {
						return fmt.Errorf("album %q: id must be a uuid", a.ID)
					}
					if err := store.Upsert(ctx, a); err != nil {
						return err
					}
					n++
				}
				return nil
			})
			if err != nil {
				return err
			}
			log.Info("albums seeded", "file", file, "count", n)
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d album(s)\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML catalog (default CATALOG_FILE)")
	return cmd
}
