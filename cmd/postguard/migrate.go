package main

import (
	"database/sql"
	"fmt"

	"postguard/internal/biz"
	"postguard/internal/data"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	var rebuildBloom bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger()
			bc, err := loadConfig(logger)
			if err != nil {
				return err
			}

			db, err := sql.Open(bc.Data.Database.Driver, bc.Data.Database.Source)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := data.RunMigrate(bc.Data, db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			version, dirty, err := data.MigrationVersion(bc.Data, db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d (dirty=%t)\n", version, dirty)

			if !rebuildBloom {
				return nil
			}
			d, cleanupData, err := data.NewData(bc.Data, logger)
			if err != nil {
				return err
			}
			defer cleanupData()
			cache, cleanupRedis, err := data.NewRedisCache(bc.Data, logger)
			if err != nil {
				return err
			}
			defer cleanupRedis()

			filter := data.NewBloomFilter(cache, bc.Moderation)
			if err := filter.Reset(cmd.Context()); err != nil {
				return fmt.Errorf("reset bloom filter: %w", err)
			}
			repo := data.NewBadImageRepo(d, logger)
			index := data.NewBadImageIndex(filter, repo, logger)
			uc := biz.NewModerationUsecase(nil, nil, index, repo, logger)
			added, err := uc.RebuildBadImageIndex(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "bloom filter rebuilt with %d pHashes\n", added)
			return nil
		},
	}
	cmd.Flags().BoolVar(&rebuildBloom, "rebuild-bloom", false, "Reset and refill the bad image bloom filter from the database")
	return cmd
}
