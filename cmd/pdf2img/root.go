package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourusername/pdf2img/internal/client"
)

const defaultServer = "http://localhost:8080"

// cliOptions は全サブコマンド共通の設定です。
type cliOptions struct {
	server   string
	username string
	password string
	timeout  time.Duration
	quiet    bool

	api *client.Client
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	rootCmd := &cobra.Command{
		Use:           "pdf2img",
		Short:         "PDF をページ画像に変換する pdf2img API のクライアント",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			api, err := client.New(opts.server)
			if err != nil {
				return err
			}
			opts.api = api
			if opts.username == "" {
				return nil
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			if err := api.Login(ctx, opts.username, opts.password); err != nil {
				return fmt.Errorf("login: %w", err)
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.server, "server", envOr("PDF2IMG_SERVER", defaultServer), "API サーバーの URL")
	flags.StringVar(&opts.username, "username", os.Getenv("PDF2IMG_USERNAME"), "ログインユーザー名")
	flags.StringVar(&opts.password, "password", os.Getenv("PDF2IMG_PASSWORD"), "ログインパスワード")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Minute, "コマンド全体のタイムアウト")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "スピナーを表示しない")

	rootCmd.AddCommand(
		newConvertCmd(opts),
		newStatusCmd(opts),
		newListCmd(opts),
		newResultsCmd(opts),
		newArchiveCmd(opts),
	)
	return rootCmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
