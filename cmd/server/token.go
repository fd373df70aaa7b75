package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/LorillaJm/es6-sub000/pkg/jwt"
)

type tokenOptions struct {
	handle string
	role   string
	orgID  string
	ttl    time.Duration
}

// NewTokenCommand 签发开发用 Access Token（生产环境由身份提供方签发）
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &tokenOptions{}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "签发开发用 Access Token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch opts.role {
			case jwt.RoleMember, jwt.RoleSupervisor, jwt.RoleAdmin:
			default:
				return fmt.Errorf("无效的角色 %q: 仅支持 member / supervisor / admin", opts.role)
			}

			cfg, logger, err := bootstrap(rootOpts)
			if err != nil {
				return err
			}
			defer logger.Sync()

			mgr := jwt.NewManager(&cfg.Auth)
			ttl := opts.ttl
			if ttl <= 0 {
				ttl = cfg.Auth.AccessTokenTTL
			}
			token, err := mgr.GenerateAccessTokenWithTTL(opts.handle, opts.role, opts.orgID, ttl)
			if err != nil {
				return fmt.Errorf("签发令牌失败: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.handle, "handle", "", "人员标识（必填）")
	cmd.Flags().StringVar(&opts.role, "role", jwt.RoleMember, "角色 member|supervisor|admin")
	cmd.Flags().StringVar(&opts.orgID, "org", "", "组织 ID")
	cmd.Flags().DurationVar(&opts.ttl, "ttl", 0, "有效期（缺省使用 auth.access_token_ttl）")
	_ = cmd.MarkFlagRequired("handle")

	return cmd
}
