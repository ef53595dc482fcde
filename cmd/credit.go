package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/shouni/jimeng-image-kit/internal/builder"
	"github.com/shouni/jimeng-image-kit/pkg/domain"
)

var (
	creditID    int64
	creditClaim bool
)

var creditCmd = &cobra.Command{
	Use:   "credit",
	Short: "クレジット残高を表示します。--claim で日次クレジットを受け取ります。",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, app *builder.AppContext) error {
			creds, err := app.Store.ListCredentials(ctx)
			if err != nil {
				return err
			}
			for _, c := range creds {
				if creditID != 0 && c.ID != creditID {
					continue
				}
				if creditClaim {
					if _, err := app.Credit.ClaimDaily(ctx, c); err != nil {
						slog.WarnContext(ctx, "日次クレジットの受け取りに失敗しました", "credential_id", c.ID, "error", err)
					}
				}
				b, err := app.Credit.GetBalance(ctx, c)
				if err != nil {
					slog.ErrorContext(ctx, "残高の取得に失敗しました", "credential_id", c.ID, "error", err)
					continue
				}
				printBalance(cmd, c, b)
			}
			return nil
		})
	},
}

func init() {
	creditCmd.Flags().Int64Var(&creditID, "id", 0, "対象のクレデンシャル ID（省略時は全件）")
	creditCmd.Flags().BoolVar(&creditClaim, "claim", false, "日次クレジットを受け取ります。")
}

func printBalance(cmd *cobra.Command, c domain.Credential, b domain.CreditBalance) {
	fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\ttotal=%d gift=%d purchase=%d vip=%d\n",
		c.ID, c.Username, b.Total(), b.Gift, b.Purchase, b.VIP)
}
