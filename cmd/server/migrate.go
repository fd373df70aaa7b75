package main

import (
	"database/sql"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/LorillaJm/es6-sub000/pkg/database"
)

// NewMigrateCommand 数据库迁移：up / down [steps] / version
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "执行数据库迁移",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "迁移到最新版本",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSQLDB(rootOpts, func(db *sql.DB, logger *zap.Logger) error {
				return database.RunMigrations(db, logger)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "回滚迁移（默认 1 步）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("steps 必须为正整数: %q", args[0])
				}
				steps = n
			}
			return withSQLDB(rootOpts, func(db *sql.DB, logger *zap.Logger) error {
				return database.RollbackMigrations(db, steps, logger)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "显示当前迁移版本",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSQLDB(rootOpts, func(db *sql.DB, _ *zap.Logger) error {
				version, dirty, err := database.MigrationVersion(db)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%v\n", version, dirty)
				return nil
			})
		},
	})

	return cmd
}

func withSQLDB(rootOpts *RootOptions, fn func(db *sql.DB, logger *zap.Logger) error) error {
	cfg, logger, err := bootstrap(rootOpts)
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := database.NewDB(&cfg.Database, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	defer sqlDB.Close()

	if err := fn(sqlDB, logger); err != nil {
		logger.Error("迁移失败", zap.Error(err))
		return err
	}
	return nil
}
