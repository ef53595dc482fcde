package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/jimeng-image-kit/internal/builder"
	"github.com/shouni/jimeng-image-kit/internal/config"
	"github.com/shouni/jimeng-image-kit/pkg/domain"
	"github.com/shouni/jimeng-image-kit/pkg/repository"
)

func TestValidateSetting(t *testing.T) {
	assert.NoError(t, validateSetting(domain.SettingDailyImageLimit, "20"))
	assert.NoError(t, validateSetting(domain.SettingDailyVideoLimit, "0"))
	assert.Error(t, validateSetting(domain.SettingDailyImageLimit, "-1"))
	assert.Error(t, validateSetting(domain.SettingDailyImageLimit, "many"))
	assert.Error(t, validateSetting("unknown", "1"))
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("既定の .env が無くてもよい", func(t *testing.T) {
		assert.NoError(t, loadEnvFile(filepath.Join(dir, ".env"), false))
	})

	t.Run("明示したファイルが無ければエラー", func(t *testing.T) {
		assert.Error(t, loadEnvFile(filepath.Join(dir, "missing.env"), true))
	})

	t.Run("環境変数を読み込む", func(t *testing.T) {
		path := filepath.Join(dir, "test.env")
		require.NoError(t, os.WriteFile(path, []byte("JIMENG_TEST_ONLY_KEY=loaded\n"), 0o600))
		t.Cleanup(func() { _ = os.Unsetenv("JIMENG_TEST_ONLY_KEY") })

		require.NoError(t, loadEnvFile(path, true))
		assert.Equal(t, "loaded", os.Getenv("JIMENG_TEST_ONLY_KEY"))
	})
}

func TestImportCredentials(t *testing.T) {
	ctx := context.Background()
	reader, _, _, err := builder.NewIO(ctx, &config.Config{})
	require.NoError(t, err)
	store := repository.NewMemoryStore()
	app := &builder.AppContext{Store: store, Reader: reader}

	path := filepath.Join(t.TempDir(), "tokens.txt")
	content := "# comment\n\ntok-aaaaaaaaaaaa\nus-tok-bbbbbbbb\nbob----tok-c\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	n, err := importCredentials(ctx, app, path)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	creds, err := store.ListCredentials(ctx)
	require.NoError(t, err)
	require.Len(t, creds, 3)
	assert.Equal(t, domain.RegionInternational, creds[1].Region)
	assert.Equal(t, "bob", creds[2].Username)

	t.Run("同じ先頭を持つ別のトークンは別の行として取り込む", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "prefix.txt")
		require.NoError(t, os.WriteFile(path, []byte("abcdef0123AAAA\nabcdef0123BBBB\n"), 0o600))
		n, err := importCredentials(ctx, app, path)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("ユーザー名が衝突した行はスキップする", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "dup.txt")
		require.NoError(t, os.WriteFile(path, []byte("bob----tok-other\ncarol----tok-d\n"), 0o600))
		n, err := importCredentials(ctx, app, path)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		creds, err := store.ListCredentials(ctx)
		require.NoError(t, err)
		for _, c := range creds {
			if c.Username == "bob" {
				assert.Equal(t, "tok-c", c.Token, "the first token is kept")
			}
		}
	})

	t.Run("トークンの無い行はエラー", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.txt")
		require.NoError(t, os.WriteFile(bad, []byte("alice----\n"), 0o600))
		_, err := importCredentials(ctx, app, bad)
		assert.ErrorContains(t, err, "line 1")
	})
}

func TestGenerateFlags_Options(t *testing.T) {
	var f generateFlags
	c := &cobra.Command{Use: "image"}
	f.register(c)
	require.NoError(t, c.ParseFlags([]string{"--ratio", "16:9", "--strength", "0.3", "-n", "3"}))

	opts := f.options(c)
	assert.Equal(t, "16:9", opts.Ratio)
	require.NotNil(t, opts.SampleStrength)
	assert.InDelta(t, 0.3, *opts.SampleStrength, 1e-9)
	assert.Nil(t, opts.Seed, "unset seed stays random")
	assert.Equal(t, 3, f.count)
}

func TestRootCommand(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"account", "credit", "image", "composite", "video", "config"} {
		assert.True(t, names[want], want)
	}
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("verbose"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("env-file"))
}
