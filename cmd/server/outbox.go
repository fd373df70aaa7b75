package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/LorillaJm/es6-sub000/internal/repository"
	"github.com/LorillaJm/es6-sub000/pkg/database"
)

// NewOutboxCommand 发件箱运维：stats / requeue
func NewOutboxCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "事务发件箱运维",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "按状态统计发件箱事件",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOutbox(rootOpts, func(ctx context.Context, repo repository.OutboxRepository) error {
				counts, err := repo.CountByStatus(ctx)
				if err != nil {
					return err
				}
				statuses := make([]string, 0, len(counts))
				for s := range counts {
					statuses = append(statuses, s)
				}
				sort.Strings(statuses)
				for _, s := range statuses {
					fmt.Fprintf(cmd.OutOrStdout(), "%-12s %d\n", s, counts[s])
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "requeue",
		Short: "把已放弃的事件重新放回待投递队列",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOutbox(rootOpts, func(ctx context.Context, repo repository.OutboxRepository) error {
				n, err := repo.RequeueFailed(ctx, time.Now().UTC())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "requeued %d\n", n)
				return nil
			})
		},
	})

	return cmd
}

func withOutbox(rootOpts *RootOptions, fn func(ctx context.Context, repo repository.OutboxRepository) error) error {
	cfg, logger, err := bootstrap(rootOpts)
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := database.NewDB(&cfg.Database, logger)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return fn(ctx, repository.NewOutboxRepo(db))
}
