package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/shouni/jimeng-image-kit/internal/builder"
	"github.com/shouni/jimeng-image-kit/pkg/domain"
	"github.com/shouni/jimeng-image-kit/pkg/repository"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "クレデンシャルを管理します。",
}

var accountImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "1行1件のトークンファイルを取り込みます（token / us-token / username----token）。",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, app *builder.AppContext) error {
			n, err := importCredentials(ctx, app, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d 件のクレデンシャルを取り込みました\n", n)
			return nil
		})
	},
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "クレデンシャルと今日の使用量を表示します。",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, app *builder.AppContext) error {
			creds, err := app.Store.ListCredentials(ctx)
			if err != nil {
				return err
			}
			day := domain.Day(time.Now())
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUSERNAME\tREGION\tIMAGE\tVIDEO")
			for _, c := range creds {
				img, err := app.Store.CountUsage(ctx, c.ID, domain.GenerationImage, day)
				if err != nil {
					return err
				}
				vid, err := app.Store.CountUsage(ctx, c.ID, domain.GenerationVideo, day)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\n", c.ID, c.Username, c.Region, img, vid)
			}
			return w.Flush()
		})
	},
}

func init() {
	accountCmd.AddCommand(accountImportCmd, accountListCmd)
}

func importCredentials(ctx context.Context, app *builder.AppContext, path string) (int, error) {
	rc, err := app.Reader.Open(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer rc.Close()

	count := 0
	sc := bufio.NewScanner(rc)
	for line := 1; sc.Scan(); line++ {
		user, token, ok, err := domain.ParseCredentialLine(sc.Text())
		if err != nil {
			return count, fmt.Errorf("line %d: %w", line, err)
		}
		if !ok {
			continue
		}
		c, err := app.Store.AddCredential(ctx, user, token)
		if errors.Is(err, repository.ErrCredentialExists) {
			slog.WarnContext(ctx, "同じユーザー名で別のトークンが登録済みのためスキップします", "line", line, "username", user)
			continue
		}
		if err != nil {
			return count, fmt.Errorf("line %d: %w", line, err)
		}
		slog.InfoContext(ctx, "クレデンシャルを取り込みました", "credential_id", c.ID, "username", c.Username, "region", string(c.Region))
		count++
	}
	return count, sc.Err()
}
