package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	appName          = "copytabs"
	defaultSeparator = "------------------------"
)

// configDir is where config.toml, languages.yml and the history live.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", appName)
}

// newViper returns a viper instance carrying every default.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("include_file_tree", true)
	v.SetDefault("structured_tree_position", string(TreeAtStart))
	v.SetDefault("include_file_types", []string{})
	v.SetDefault("exclude_file_types", []string{})
	v.SetDefault("separator_line", defaultSeparator)
	v.SetDefault("include_comments", true)
	v.SetDefault("include_line_numbers", false)
	v.SetDefault("max_file_size", DefaultMaxFileSize)
	v.SetDefault("copy_to_clipboard", false)
	v.SetDefault("max_depth", DefaultMaxDepth)
	v.SetDefault("link_depth", 0)
	v.SetDefault("tokenizer", "tiktoken")
	v.SetDefault("model", "")
	v.SetDefault("tokenizer_file", "")
	v.SetDefault("root_name", "")
	v.SetDefault("history_file", filepath.Join(configDir(), "history.json"))
	v.SetDefault("no_ignore", false)
	v.SetDefault("ignore", []string{})
	v.SetDefault("debug", false)
	return v
}

// flagKeys maps flag names to the config keys they override.
var flagKeys = map[string]string{
	"tree":           "include_file_tree",
	"tree-position":  "structured_tree_position",
	"include":        "include_file_types",
	"exclude":        "exclude_file_types",
	"separator":      "separator_line",
	"line-numbers":   "include_line_numbers",
	"max-size":       "max_file_size",
	"clipboard":      "copy_to_clipboard",
	"max-depth":      "max_depth",
	"link-depth":     "link_depth",
	"tokenizer":      "tokenizer",
	"model":          "model",
	"tokenizer-file": "tokenizer_file",
	"root-name":      "root_name",
	"history-file":   "history_file",
	"no-ignore":      "no_ignore",
	"ignore":         "ignore",
	"debug":          "debug",
}

// bindFlags binds every flag in flags that has a config key.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	// Negative switches only ever turn a setting off
	if f := flags.Lookup("no-tree"); f != nil && f.Changed {
		v.Set("include_file_tree", false)
	}
	if f := flags.Lookup("no-comments"); f != nil && f.Changed {
		v.Set("include_comments", false)
	}
	return nil
}

// readConfig loads the config file and environment into v. A missing
// config file is not an error. It returns the file used, if any.
func readConfig(v *viper.Viper, cfgFile string) (string, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(configDir())
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("toml")
	}

	v.SetEnvPrefix(strings.ToUpper(appName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv() // read in environment variables that match COPYTABS_*

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("error reading config file: %w", err)
	}
	return v.ConfigFileUsed(), nil
}

// settingsFromViper snapshots the copy settings for one run.
func settingsFromViper(v *viper.Viper) (CopySettings, error) {
	settings := CopySettings{
		IncludeFileTree:    v.GetBool("include_file_tree"),
		TreePosition:       TreePosition(strings.ToLower(v.GetString("structured_tree_position"))),
		IncludeFileTypes:   splitList(v.GetStringSlice("include_file_types")),
		ExcludeFileTypes:   splitList(v.GetStringSlice("exclude_file_types")),
		SeparatorLine:      v.GetString("separator_line"),
		IncludeComments:    v.GetBool("include_comments"),
		IncludeLineNumbers: v.GetBool("include_line_numbers"),
		MaxFileSize:        v.GetInt64("max_file_size"),
	}
	if err := settings.validate(); err != nil {
		return CopySettings{}, err
	}
	return settings, nil
}

// splitList flattens comma-separated entries, as env vars and single flags give them.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// ClipboardMode is the argument to the clipboard-mode command.
type ClipboardMode string

const (
	ClipboardOn     ClipboardMode = "on"
	ClipboardOff    ClipboardMode = "off"
	ClipboardToggle ClipboardMode = "toggle"
)

// setClipboardMode updates copy_to_clipboard in the config file at path and
// returns the new value. Only that key is touched; other file contents are kept.
func setClipboardMode(path string, current bool, mode ClipboardMode) (bool, error) {
	var enabled bool
	switch mode {
	case ClipboardOn:
		enabled = true
	case ClipboardOff:
		enabled = false
	case ClipboardToggle, "":
		enabled = !current
	default:
		return current, fmt.Errorf("unknown clipboard mode %q, expected on, off or toggle", mode)
	}

	file := viper.New()
	file.SetConfigFile(path)
	file.SetConfigType("toml")
	if err := file.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return current, fmt.Errorf("error reading config file: %w", err)
		}
	}
	file.Set("copy_to_clipboard", enabled)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return current, fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := file.WriteConfigAs(path); err != nil {
		return current, fmt.Errorf("failed to save config file %s: %w", path, err)
	}
	return enabled, nil
}
