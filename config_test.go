package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsFromViper_Defaults(t *testing.T) {
	settings, err := settingsFromViper(newViper())

	require.NoError(t, err)
	assert.Equal(t, CopySettings{
		IncludeFileTree:    true,
		TreePosition:       TreeAtStart,
		SeparatorLine:      "------------------------",
		IncludeComments:    true,
		IncludeLineNumbers: false,
		MaxFileSize:        5242880,
	}, settings)
}

func TestReadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
structured_tree_position = "end"
include_file_types = ["go", "ts"]
max_file_size = 1024
separator_line = "==="
`), 0o644))
	t.Setenv("COPYTABS_SEPARATOR_LINE", "###")

	v := newViper()
	used, err := readConfig(v, path)
	require.NoError(t, err)
	assert.Equal(t, path, used)

	settings, err := settingsFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, TreeAtEnd, settings.TreePosition)
	assert.Equal(t, []string{"go", "ts"}, settings.IncludeFileTypes)
	assert.Equal(t, int64(1024), settings.MaxFileSize)
	assert.Equal(t, "###", settings.SeparatorLine)
}

func TestReadConfig_MissingDefaultFileIsFine(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	chdir(t, t.TempDir())

	used, err := readConfig(newViper(), "")

	require.NoError(t, err)
	assert.Empty(t, used)
}

func TestSettingsFromViper_Invalid(t *testing.T) {
	v := newViper()
	v.Set("structured_tree_position", "middle")
	_, err := settingsFromViper(v)
	assert.ErrorIs(t, err, ErrInvalidSettings)

	v = newViper()
	v.Set("max_file_size", 0)
	_, err = settingsFromViper(v)
	assert.ErrorIs(t, err, ErrInvalidSettings)
}

func TestBindFlags(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Bool("tree", true, "")
	flags.Bool("no-tree", false, "")
	flags.Bool("no-comments", false, "")
	flags.StringSlice("exclude", nil, "")
	flags.Int64("max-size", DefaultMaxFileSize, "")
	require.NoError(t, flags.Parse([]string{"--no-tree", "--exclude", "md,txt", "--max-size", "2048"}))

	v := newViper()
	require.NoError(t, bindFlags(v, flags))

	settings, err := settingsFromViper(v)
	require.NoError(t, err)
	assert.False(t, settings.IncludeFileTree)
	assert.True(t, settings.IncludeComments)
	assert.Equal(t, []string{"md", "txt"}, settings.ExcludeFileTypes)
	assert.Equal(t, int64(2048), settings.MaxFileSize)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"go", "ts", "md"}, splitList([]string{"go, ts", " ", "md"}))
	assert.Nil(t, splitList(nil))
}

func TestSetClipboardMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "copytabs", "config.toml")

	enabled, err := setClipboardMode(path, false, ClipboardToggle)
	require.NoError(t, err)
	assert.True(t, enabled)

	require.NoError(t, os.WriteFile(path, []byte("separator_line = \"~~~\"\ncopy_to_clipboard = true\n"), 0o644))
	enabled, err = setClipboardMode(path, true, ClipboardOff)
	require.NoError(t, err)
	assert.False(t, enabled)

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	assert.False(t, v.GetBool("copy_to_clipboard"))
	assert.Equal(t, "~~~", v.GetString("separator_line"))

	_, err = setClipboardMode(path, false, "sometimes")
	assert.Error(t, err)
}
