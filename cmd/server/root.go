package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/LorillaJm/es6-sub000/config"
	applogger "github.com/LorillaJm/es6-sub000/pkg/logger"
)

// RootOptions 全局参数
type RootOptions struct {
	ConfigPath string
}

// NewRootCommand 创建 attendance 命令行入口
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "attendance",
		Short:         "考勤台账服务",
		Long:          "考勤班次台账：签到、签退、休息与更正，事务发件箱驱动的实时镜像与积分。",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "配置文件路径（缺省查找 ./config/config.yaml）")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))
	cmd.AddCommand(NewOutboxCommand(opts))

	return cmd
}

// bootstrap 加载配置并初始化日志
func bootstrap(opts *RootOptions) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("加载配置失败: %w", err)
	}
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return cfg, logger, nil
}
