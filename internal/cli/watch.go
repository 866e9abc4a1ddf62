package cli

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/roach88/hwpipe/internal/config"
)

// watch compiles input once and again after every change to the input or
// an annotation file, until ctx is done. Compilation failures are reported
// and do not stop the loop.
func watch(ctx context.Context, opts *CompileOptions, cfg *config.Config, input string, cmd *cobra.Command) error {
	logger := opts.logger(cmd.ErrOrStderr())
	formatter := opts.formatter(cmd)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeGeneric, "cannot watch input", err, nil)
	}
	defer w.Close()

	files := append([]string{input}, cfg.AnnotationFiles...)
	tracked := make(map[string]bool, len(files))
	dirs := make(map[string]bool)
	for _, f := range files {
		tracked[filepath.Clean(f)] = true
		// Watch the directory so editors that replace files are seen.
		dir := filepath.Dir(f)
		if dirs[dir] {
			continue
		}
		dirs[dir] = true
		if err := w.Add(dir); err != nil {
			return formatter.fail(ExitCommandError, ErrCodeNotFound, "cannot watch input", err, nil)
		}
	}

	rebuild := func() {
		if _, err := compileOnce(ctx, opts, cfg, input, cmd); err != nil {
			logger.Warn("compilation failed", "input", input, "error", err)
		}
	}
	rebuild()
	logger.Info("watching for changes", "files", len(files))
	return watchLoop(ctx, w.Events, w.Errors, tracked, rebuild, func(err error) {
		logger.Error("watch error", "error", err)
	})
}

// watchLoop calls rebuild for every write, create or rename of a tracked
// file. It returns nil when ctx is done or the event channel closes.
func watchLoop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error, tracked map[string]bool, rebuild func(), onError func(error)) error {
	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Rename
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Op&relevant == 0 || !tracked[filepath.Clean(ev.Name)] {
				continue
			}
			rebuild()
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			onError(err)
		}
	}
}
