// notification-watch は通知ストリームを端末で確認するためのCLI。
// ストリームの監視、フィードの取得、既読化、開発用トークンの発行を行う。
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/gymhub/pkg/event"
	"github.com/nao1215/gymhub/pkg/httpclient"
	"github.com/nao1215/gymhub/pkg/middleware"
	"github.com/nao1215/gymhub/pkg/streamclient"
	"github.com/spf13/cobra"
)

// options はコマンド共通のフラグ。
type options struct {
	server string
	token  string
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd はルートコマンドを組み立てる。
func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "notification-watch",
		Short:         "ジム会員ポータルの通知ストリームを確認する",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.server, "server", envOr("GYMHUB_SERVER", "http://localhost:8086"), "通知サービスのURL")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("GYMHUB_TOKEN"), "JWTトークン")

	root.AddCommand(
		newWatchCmd(opts),
		newListCmd(opts),
		newReadCmd(opts),
		newReadAllCmd(opts),
		newTokenCmd(),
	)
	return root
}

// newWatchCmd はストリームを監視して変化のたびにフィードを表示するコマンドを返す。
func newWatchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "ストリームを監視してフィードの変化を表示する",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			clientOpts := streamclient.DefaultOptions()
			clientOpts.OnChange = func(s streamclient.Snapshot) {
				printSnapshot(out, s)
			}

			api := streamclient.NewHTTPAPI(httpclient.New(opts.server, opts.token))
			client := streamclient.New(api, clientOpts)
			if err := client.Refresh(ctx); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "初回の取得に失敗しました: %v\n", err)
			}
			return client.Run(ctx)
		},
	}
}

// newListCmd は現在のフィードを1度だけ表示するコマンドを返す。
func newListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "現在のフィードを表示する",
		RunE: func(cmd *cobra.Command, _ []string) error {
			api := streamclient.NewHTTPAPI(httpclient.New(opts.server, opts.token))
			resp, err := api.Poll(cmd.Context())
			if err != nil {
				return err
			}
			printFeed(cmd.OutOrStdout(), resp.Notifications, resp.UnreadCount)
			return nil
		},
	}
}

// newReadCmd は通知を既読にするコマンドを返す。
func newReadCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "read KEY",
		Short: "通知を既読にする",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api := streamclient.NewHTTPAPI(httpclient.New(opts.server, opts.token))
			if err := api.MarkRead(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s を既読にしました\n", args[0])
			return nil
		},
	}
}

// newReadAllCmd は現在のフィードの通知をすべて既読にするコマンドを返す。
func newReadAllCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "read-all",
		Short: "現在のフィードの通知をすべて既読にする",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp struct {
				Success bool `json:"success"`
				Marked  int  `json:"marked"`
			}
			client := httpclient.New(opts.server, opts.token)
			if err := client.PostJSON(cmd.Context(), "/api/v1/notifications/read-all", nil, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d件を既読にしました\n", resp.Marked)
			return nil
		},
	}
}

// newTokenCmd は開発用のJWTトークンを発行するコマンドを返す。
func newTokenCmd() *cobra.Command {
	var userID, email, secret string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "開発用のJWTトークンを発行する",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if email == "" {
				email = userID + "@example.com"
			}
			token, err := middleware.GenerateJWT(secret, userID, email)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "ユーザーID")
	cmd.Flags().StringVar(&email, "email", "", "メールアドレス（省略時は<user>@example.com）")
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("GYMHUB_JWT_SECRET"), "JWT署名用の秘密鍵")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// printSnapshot は接続状態とフィードを表示する。
func printSnapshot(w io.Writer, s streamclient.Snapshot) {
	fmt.Fprintf(w, "[%s] ", s.State)
	printFeed(w, s.Notifications, s.UnreadCount)
}

// printFeed は未読数と通知一覧を表示する。
func printFeed(w io.Writer, notifications []event.Notification, unread int) {
	fmt.Fprintf(w, "未読 %d件\n", unread)
	for _, n := range notifications {
		fmt.Fprintf(w, "  %-6s %-8s %s: %s (%s)\n", n.Priority, n.Type, n.Title, n.Message, n.ID)
	}
}

// envOr は環境変数keyの値を返す。未設定ならfallbackを返す。
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
