package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/shouni/jimeng-image-kit/internal/builder"
	"github.com/shouni/jimeng-image-kit/pkg/domain"
	"github.com/shouni/jimeng-image-kit/pkg/runner"
)

// generateFlags は生成系サブコマンドで共通のフラグです。
type generateFlags struct {
	model      string
	prompt     string
	ratio      string
	resolution string
	negative   string
	strength   float64
	seed       int64
	count      int
	out        string
	noSave     bool
}

func (f *generateFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.model, "model", "", "モデル名（省略時は既定モデル）")
	cmd.Flags().StringVarP(&f.prompt, "prompt", "p", "", "プロンプト")
	cmd.Flags().StringVar(&f.ratio, "ratio", "", "アスペクト比（例: 16:9）")
	cmd.Flags().StringVar(&f.resolution, "resolution", "", "解像度（1k / 2k / 4k）")
	cmd.Flags().StringVar(&f.negative, "negative", "", "ネガティブプロンプト")
	cmd.Flags().Float64Var(&f.strength, "strength", 0, "精細度 0..1（合成では参照の強さ）")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "シード値（省略時はランダム）")
	cmd.Flags().IntVarP(&f.count, "count", "n", 1, "同じ依頼を並列に実行する回数")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "保存先ディレクトリ（ローカル or gs://...）。省略時は JIMENG_OUTPUT_DIR")
	cmd.Flags().BoolVar(&f.noSave, "no-save", false, "URL を表示するだけで保存しません。")
}

func (f *generateFlags) options(cmd *cobra.Command) domain.Options {
	opts := domain.Options{
		Ratio:          f.ratio,
		Resolution:     f.resolution,
		NegativePrompt: f.negative,
	}
	if cmd.Flags().Changed("strength") {
		opts.SampleStrength = &f.strength
	}
	if cmd.Flags().Changed("seed") {
		opts.Seed = &f.seed
	}
	return opts
}

var (
	imageFlags     generateFlags
	compositeFlags generateFlags
	videoFlags     generateFlags

	compositeImages []string
	videoFirst      string
	videoLast       string
	videoDuration   int
	videoResolution string
)

var imageCmd = &cobra.Command{
	Use:   "image",
	Short: "テキストから画像を生成します。",
	RunE: func(cmd *cobra.Command, args []string) error {
		if imageFlags.prompt == "" {
			return errors.New("--prompt is required")
		}
		req := domain.ImageRequest{Model: imageFlags.model, Prompt: imageFlags.prompt, Options: imageFlags.options(cmd)}
		return runTasks(cmd, &imageFlags, func(name string) runner.Task { return runner.ImageTask(name, req) })
	},
}

var compositeCmd = &cobra.Command{
	Use:   "composite",
	Short: "入力画像を合成して新しい画像を生成します。",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(compositeImages) == 0 {
			return errors.New("at least one --image is required")
		}
		inputs := make([]domain.ImageInput, len(compositeImages))
		for i, ref := range compositeImages {
			inputs[i] = domain.ImageInput{Ref: ref}
		}
		req := domain.CompositeRequest{Model: compositeFlags.model, Prompt: compositeFlags.prompt, Images: inputs, Options: compositeFlags.options(cmd)}
		return runTasks(cmd, &compositeFlags, func(name string) runner.Task { return runner.CompositeTask(name, req) })
	},
}

var videoCmd = &cobra.Command{
	Use:   "video",
	Short: "テキストまたはフレーム画像から動画を生成します。",
	RunE: func(cmd *cobra.Command, args []string) error {
		if videoFlags.prompt == "" && videoFirst == "" {
			return errors.New("--prompt or --first is required")
		}
		opts := videoFlags.options(cmd)
		opts.FirstFrame = videoFirst
		opts.LastFrame = videoLast
		opts.DurationMs = videoDuration
		opts.VideoResolution = videoResolution
		req := domain.VideoRequest{Model: videoFlags.model, Prompt: videoFlags.prompt, Options: opts}
		return runTasks(cmd, &videoFlags, func(name string) runner.Task { return runner.VideoTask(name, req) })
	},
}

func init() {
	imageFlags.register(imageCmd)

	compositeFlags.register(compositeCmd)
	compositeCmd.Flags().StringArrayVarP(&compositeImages, "image", "i", nil, "入力画像（URL / gs:// / ローカルパス）。複数指定できます。")

	videoFlags.register(videoCmd)
	videoCmd.Flags().StringVar(&videoFirst, "first", "", "先頭フレーム画像")
	videoCmd.Flags().StringVar(&videoLast, "last", "", "末尾フレーム画像")
	videoCmd.Flags().IntVar(&videoDuration, "duration", 5000, "動画の長さ（ミリ秒）")
	videoCmd.Flags().StringVar(&videoResolution, "video-resolution", "720p", "動画の解像度（480p / 720p / 1080p）")
}

// runTasks は count 件のタスクを Runner で実行し、結果の URL を表示して保存します。
func runTasks(cmd *cobra.Command, f *generateFlags, newTask func(name string) runner.Task) error {
	if f.count < 1 {
		return fmt.Errorf("--count must be positive: %d", f.count)
	}
	tasks := make([]runner.Task, f.count)
	for i := range tasks {
		tasks[i] = newTask(fmt.Sprintf("%s-%d", cmd.Name(), i+1))
	}

	return withApp(cmd.Context(), func(ctx context.Context, app *builder.AppContext) error {
		var outcomes []runner.Outcome
		if len(tasks) == 1 {
			res, err := app.Runner.Run(ctx, tasks[0])
			outcomes = []runner.Outcome{{Task: tasks[0], Result: res, Err: err}}
		} else {
			var err error
			if outcomes, err = app.Runner.RunBatch(ctx, tasks); err != nil {
				return err
			}
		}

		dir := f.out
		if dir == "" {
			dir = app.Config.OutputDir
		}
		var errs []error
		for _, o := range outcomes {
			if o.Err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", o.Task.Name, o.Err))
				continue
			}
			for _, u := range o.Result.URLs {
				fmt.Fprintln(cmd.OutOrStdout(), u)
			}
			if f.noSave {
				continue
			}
			paths, err := app.Publisher.Save(ctx, o.Result, dir)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", o.Task.Name, err))
				continue
			}
			slog.InfoContext(ctx, "保存しました", "task", o.Task.Name, "paths", paths)
		}
		return errors.Join(errs...)
	})
}
