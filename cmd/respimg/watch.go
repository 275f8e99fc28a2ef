package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/lucas-albers-lz4/respimg/pkg/exitcodes"
	"github.com/lucas-albers-lz4/respimg/pkg/log"
	"github.com/lucas-albers-lz4/respimg/pkg/pipeline"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultDebounce = 300 * time.Millisecond

func newWatchCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild whenever the input tree changes",
		Long: `Run a build, then watch the input tree and rebuild after every burst of
changes. The cache is kept across rebuilds, so only changed images are processed
again. Failed rebuilds are logged and leave the previous output in place.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, v)
		},
	}
	addTreeFlags(cmd)
	cmd.Flags().String("metadata", "", "write the metadata payload to this path, relative to the output directory")
	cmd.Flags().Duration("debounce", defaultDebounce, "quiet period after the last change before rebuilding")
	return cmd
}

func runWatch(cmd *cobra.Command, v *viper.Viper) error {
	p, err := newPipeline(v)
	if err != nil {
		return err
	}
	inputRoot := v.GetString("input")
	outputRoot := v.GetString("output")
	ctx := cmd.Context()

	rebuild := newRebuild(cmd.OutOrStdout(), p)
	rebuild(ctx, nil)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return exitcodes.Wrap(exitcodes.ExitGeneralRuntimeError, fmt.Errorf("failed to create fsnotify watcher: %w", err))
	}
	defer fsw.Close()

	if err := watchTree(fsw, inputRoot); err != nil {
		return exitcodes.Wrap(exitcodes.ExitIOError, err)
	}
	log.Info("Watching for changes", "input", inputRoot)

	changes := make(chan string)
	go forwardEvents(ctx, fsw, outputRoot, changes)
	debounce(ctx, changes, v.GetDuration("debounce"), rebuild)
	return nil
}

// newRebuild returns the function run for every batch of changes. Failures are
// logged and keep the previous output. After a successful build, cache entries
// the build did not use are evicted so a long session does not accumulate them.
func newRebuild(out io.Writer, p *pipeline.Pipeline) func(context.Context, []string) {
	return func(ctx context.Context, changed []string) {
		if len(changed) > 0 {
			log.Info("Input changed, rebuilding", "changes", len(changed), "first", changed[0])
		}
		res, err := p.Run(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Error("Build failed", "error", err)
			}
			return
		}
		fmt.Fprintln(out, res.String())
		if n := p.PruneCache(); n > 0 {
			log.Debug("Evicted stale cache entries", "entries", n)
		}
	}
}

// watchTree adds root and every directory below it to the watcher.
func watchTree(fsw *fsnotify.Watcher, root string) error {
	return afero.Walk(AppFs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if err := fsw.Add(p); err != nil {
			return fmt.Errorf("failed to watch folder %s: %w", p, err)
		}
		log.Debug("Watching folder", "path", p)
		return nil
	})
}

// forwardEvents turns relevant fsnotify events into changed paths. Events
// inside the output tree are dropped so a build never triggers itself.
func forwardEvents(ctx context.Context, fsw *fsnotify.Watcher, outputRoot string, changes chan<- string) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if event.Op == fsnotify.Chmod || within(outputRoot, event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if isDir, _ := afero.IsDir(AppFs, event.Name); isDir {
					if err := watchTree(fsw, event.Name); err != nil {
						log.Warn("Failed to watch new folder", "path", event.Name, "error", err)
					}
				}
			}
			select {
			case changes <- event.Name:
			case <-ctx.Done():
				return
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			log.Warn("Watcher error", "error", err)
		}
	}
}

// debounce collects changed paths and calls fn with them, sorted and unique,
// once no change arrived for delay. It returns when ctx is done or changes is
// closed, flushing what is pending in the latter case.
func debounce(ctx context.Context, changes <-chan string, delay time.Duration, fn func(context.Context, []string)) {
	timer := time.NewTimer(delay)
	timer.Stop()
	defer timer.Stop()

	pending := make(map[string]struct{})
	flush := func() {
		if len(pending) == 0 {
			return
		}
		changed := make([]string, 0, len(pending))
		for p := range pending {
			changed = append(changed, p)
		}
		slices.Sort(changed)
		clear(pending)
		fn(ctx, changed)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-changes:
			if !ok {
				flush()
				return
			}
			pending[p] = struct{}{}
			timer.Reset(delay)
		case <-timer.C:
			flush()
		}
	}
}

// within reports whether p is root or lies below it.
func within(root, p string) bool {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(p)
	if err != nil {
		return false
	}
	return absPath == absRoot || strings.HasPrefix(absPath, absRoot+string(filepath.Separator))
}
