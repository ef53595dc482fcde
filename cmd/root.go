package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/shouni/jimeng-image-kit/internal/builder"
	"github.com/shouni/jimeng-image-kit/internal/config"
)

const defaultEnvFile = ".env"

var (
	verbose bool
	envFile string
)

var rootCmd = &cobra.Command{
	Use:           "jimeng",
	Short:         "Jimeng のアカウントプールを使って画像・動画を生成します。",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return loadEnvFile(envFile, cmd.Flags().Changed("env-file"))
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "デバッグログを出力します。")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", defaultEnvFile, "読み込む .env ファイルのパスです。")

	rootCmd.AddCommand(accountCmd, creditCmd, imageCmd, compositeCmd, videoCmd, configCmd)
}

// loadEnvFile は .env を読み込みます。明示的に指定されていなければ、存在しなくてもエラーにしません。
func loadEnvFile(path string, explicit bool) error {
	err := godotenv.Load(path)
	if err == nil {
		slog.Debug(".env を読み込みました", "path", path)
		return nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load env file %s: %w", path, err)
}

// withApp は設定を読み込んで AppContext を組み立て、fn の終了後に閉じます。
func withApp(ctx context.Context, fn func(ctx context.Context, app *builder.AppContext) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	app, err := builder.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.WarnContext(ctx, "リポジトリのクローズに失敗しました", "error", err)
		}
	}()
	return fn(ctx, app)
}

// Execute はコマンドライン解析を開始します。
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
