package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shouni/jimeng-image-kit/internal/builder"
	"github.com/shouni/jimeng-image-kit/pkg/domain"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "設定テーブルを操作します。",
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "設定値を書き込みます（例: config set daily_image_limit 20）。",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := validateSetting(key, value); err != nil {
			return err
		}
		return withApp(cmd.Context(), func(ctx context.Context, app *builder.AppContext) error {
			if err := app.Store.SetSetting(ctx, key, value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, value)
			return nil
		})
	},
}

func init() {
	configCmd.AddCommand(configSetCmd)
}

func validateSetting(key, value string) error {
	switch key {
	case domain.SettingDailyImageLimit, domain.SettingDailyVideoLimit:
		if n, err := strconv.Atoi(value); err != nil || n < 0 {
			return fmt.Errorf("%s must be a non-negative integer: %q", key, value)
		}
		return nil
	default:
		return fmt.Errorf("unknown setting key: %q", key)
	}
}
