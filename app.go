package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pterm/pterm"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// newLogger builds the process logger. Without debug only warnings and
// errors are written, so normal runs keep stderr quiet.
func newLogger(debug bool) (*zap.Logger, error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	cfg.InitialFields = map[string]interface{}{
		"appName":    appName,
		"appVersion": version,
	}

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop(), err
	}
	return logger, nil
}

// App holds everything a command needs. It is built once per invocation.
type App struct {
	v         *viper.Viper
	logger    *zap.Logger
	languages *LanguageTable
	history   *HistoryStore
	tokenizer Tokenizer
	stdout    io.Writer
	stderr    io.Writer
}

// newApp wires the logger, language table and history store from v.
func newApp(v *viper.Viper, stdout, stderr io.Writer) (*App, error) {
	logger, err := newLogger(v.GetBool("debug"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	languages, err := loadLanguageTable(configDir(), logger)
	if err != nil {
		logger.Warn("Could not load language definitions, using built-in table", zap.Error(err))
		languages = newLanguageTable()
	}

	history, err := NewHistoryStore(newFileKVStore(v.GetString("history_file")), logger)
	if err != nil {
		return nil, err
	}
	history.OnChange(func() {
		logger.Debug("History updated", zap.Int("remainingSlots", history.RemainingSlots()))
	})

	return &App{
		v:         v,
		logger:    logger,
		languages: languages,
		history:   history,
		stdout:    stdout,
		stderr:    stderr,
	}, nil
}

// Close releases the tokenizer and flushes the logger.
func (a *App) Close() {
	if a.tokenizer != nil {
		a.tokenizer.Close()
	}
	// Sync fails on terminals and pipes; only report it for real files
	if err := a.logger.Sync(); err != nil && isRegularFile(os.Stderr) {
		fmt.Fprintf(a.stderr, "failed to sync logger: %v\n", err)
	}
}

func isRegularFile(f *os.File) bool {
	info, err := f.Stat()
	return err == nil && info.Mode().IsRegular()
}

// pipeline returns a copy pipeline with the configured tokenizer. A tokenizer
// that fails to load is replaced by the word estimate.
func (a *App) pipeline() *CopyPipeline {
	if a.tokenizer == nil {
		tk, err := getTokenizer(TokenizerOptions{
			Type:  a.v.GetString("tokenizer"),
			Model: a.v.GetString("model"),
			File:  a.v.GetString("tokenizer_file"),
		}, a.logger)
		if err != nil {
			pterm.Warning.WithWriter(a.stderr).Printfln("Tokenizer unavailable, estimating tokens by words: %v", err)
		}
		a.tokenizer = tk
	}
	return NewCopyPipeline(a.languages, a.tokenizer, a.logger)
}

// SourceRequest describes where a copy takes its items from.
type SourceRequest struct {
	Paths   []string // Files, folders, git URLs or web URLs
	Folder  string   // Folder mode root
	Changed bool     // Modified files of the git worktree at the working directory
	Select  bool     // Let the user narrow the items down interactively
}

// collectItems enumerates the requested sources. With nothing requested the
// working directory is scanned. cleanup removes any temporary clones.
func (a *App) collectItems(ctx context.Context, req SourceRequest) (items []SourceItem, cleanup func(), err error) {
	var tempDirs []string
	cleanup = func() {
		for _, dir := range tempDirs {
			a.logger.Debug("Cleaning up temporary directory", zap.String("dir", dir))
			_ = os.RemoveAll(dir)
		}
	}

	base, err := os.Getwd()
	if err != nil {
		return nil, cleanup, fmt.Errorf("failed to get working directory: %w", err)
	}
	scan := ScanOptions{
		MaxDepth:    a.v.GetInt("max_depth"),
		NoIgnore:    a.v.GetBool("no_ignore"),
		IgnoreGlobs: splitList(a.v.GetStringSlice("ignore")),
	}

	if req.Changed {
		changed, err := changedItems(base, base, a.logger)
		if err != nil {
			return nil, cleanup, err
		}
		items = append(items, changed...)
	}
	if req.Folder != "" {
		root, err := filepath.Abs(req.Folder)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to resolve folder %s: %w", req.Folder, err)
		}
		scanned, err := scanFolder(root, base, scan, a.logger)
		if err != nil {
			return nil, cleanup, err
		}
		items = append(items, scanned...)
	}

	for _, input := range req.Paths {
		switch {
		case isWebURL(input):
			pages, err := webItems(ctx, input, a.v.GetInt("link_depth"), nil, a.logger)
			if err != nil {
				return nil, cleanup, err
			}
			items = append(items, pages...)
		case isGitURL(input):
			dir, err := cloneGitRepo(input, io.Discard, a.logger)
			if err != nil {
				return nil, cleanup, err
			}
			tempDirs = append(tempDirs, dir)
			// Cloned files are shown relative to the clone root
			scanned, err := scanFolder(dir, dir, scan, a.logger)
			if err != nil {
				return nil, cleanup, err
			}
			items = append(items, scanned...)
		default:
			local, err := collectPaths([]string{input}, base, scan, a.logger)
			if err != nil {
				return nil, cleanup, err
			}
			items = append(items, local...)
		}
	}

	if !req.Changed && req.Folder == "" && len(req.Paths) == 0 {
		scanned, err := scanFolder(base, base, scan, a.logger)
		if err != nil {
			return nil, cleanup, err
		}
		items = scanned
	}

	items = dedupeItems(items)
	if req.Select {
		items, err = selectItems(items)
		if err != nil {
			return nil, cleanup, err
		}
	}
	return items, cleanup, nil
}

// dedupeItems drops repeated IDs, keeping the first occurrence.
func dedupeItems(items []SourceItem) []SourceItem {
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, item := range items {
		if seen[item.ID] {
			continue
		}
		seen[item.ID] = true
		out = append(out, item)
	}
	return out
}

// CopyRequest is one copy invocation.
type CopyRequest struct {
	Source      SourceRequest
	Template    string
	Sink        SinkOptions
	Description string
}

// runCopy enumerates, processes and delivers one copy, then records it in history.
func (a *App) runCopy(ctx context.Context, req CopyRequest) error {
	settings, err := settingsFromViper(a.v)
	if err != nil {
		return err
	}

	items, cleanup, err := a.collectItems(ctx, req.Source)
	defer cleanup()
	if errors.Is(err, errSelectionAborted) {
		pterm.Info.WithWriter(a.stderr).Println("Selection aborted.")
		return nil
	}
	if err != nil {
		return err
	}

	rootName := a.v.GetString("root_name")
	if rootName == "" {
		if wd, err := os.Getwd(); err == nil {
			rootName = filepath.Base(wd)
		}
	}

	progress := newProgressReporter(a.stderr, isTerminal(os.Stderr), a.logger)
	result, err := a.pipeline().Run(items, settings, RunOptions{
		OnProgress: progress.OnProgress,
		Cancelled:  func() bool { return ctx.Err() != nil },
		Template:   req.Template,
		RootName:   rootName,
	})
	progress.Stop()
	if err != nil {
		a.logger.Error("Copy failed", zap.Error(err))
		return err
	}

	if warning := result.Warning(); warning != nil {
		pterm.Warning.WithWriter(a.stderr).Println(warning.Error())
	}
	if result.Cancelled {
		pterm.Warning.WithWriter(a.stderr).Println("Copy cancelled, delivering the files processed so far.")
	}
	if result.Content == "" {
		pterm.Info.WithWriter(a.stderr).Println("No matching files found to copy.")
		return nil
	}

	sinkOpts := req.Sink
	sinkOpts.Separator = settings.SeparatorLine
	if !sinkOpts.Clipboard {
		sinkOpts.Clipboard = a.v.GetBool("copy_to_clipboard")
	}
	if err := a.deliver(result.Content, newSink(sinkOpts, a.languages, a.stdout, a.logger), result.Stats); err != nil {
		return err
	}

	description := req.Description
	if description == "" {
		description = fmt.Sprintf("%d files copied", result.Stats.SuccessCount)
	}
	if len(result.Content) < DefaultMaxOutputSize {
		if err := a.history.Add(result.Content, description); err != nil {
			pterm.Warning.WithWriter(a.stderr).Printfln("Could not save to history: %v", err)
		}
	}
	return nil
}

// deliver hands content to sink and prints the summary. A failed clipboard
// write falls back to stdout so the output isn't lost.
func (a *App) deliver(content string, sink Sink, stats CopyStatistics) error {
	if err := sink.Deliver(content); err != nil {
		if _, ok := sink.(*clipboardSink); !ok {
			return err
		}
		pterm.Error.WithWriter(a.stderr).Printfln("%v", err)
		sink = &fileSink{w: a.stdout}
		if err := sink.Deliver(content); err != nil {
			return err
		}
	}
	pterm.Success.WithWriter(a.stderr).Println(summaryMessage(stats, sink.Name()))
	return nil
}
