package cli

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	protonation "github.com/turtacn/KeyIP-Protonate/internal/application/protonation"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Protonate/pkg/errors"
)

// DirWatcher reports PDB files that settle in a directory.  A file is
// reported once no write has touched it for the debounce interval.  The
// watcher's own outputs, recognised by their suffix, are ignored.
type DirWatcher struct {
	dir      string
	suffix   string
	debounce time.Duration
	logger   logging.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewDirWatcher creates a watcher over dir.
func NewDirWatcher(dir, suffix string, debounce time.Duration, logger logging.Logger) *DirWatcher {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &DirWatcher{dir: dir, suffix: suffix, debounce: debounce, logger: logger, pending: make(map[string]*time.Timer)}
}

// Accepts reports whether path is a structure input the watcher handles.
func (w *DirWatcher) Accepts(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".pdb" && ext != ".ent" {
		return false
	}
	if w.suffix != "" && strings.HasSuffix(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), w.suffix) {
		return false
	}
	return !strings.HasPrefix(filepath.Base(path), ".")
}

// Run watches until ctx is done, calling ready for each settled file.
// ready runs on the watcher's timer goroutines, one file at a time.
func (w *DirWatcher) Run(ctx context.Context, ready func(path string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "cannot create file watcher")
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return errors.Wrap(err, errors.ErrCodeValidation, "cannot watch directory").WithDetail(w.dir)
	}
	w.logger.Info("watching directory", logging.String("dir", w.dir), logging.Duration("debounce", w.debounce))

	var serial sync.Mutex
	fire := func(path string) {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		serial.Lock()
		defer serial.Unlock()
		ready(path)
	}

	defer w.stopPending()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !w.Accepts(ev.Name) {
				continue
			}
			w.schedule(ev.Name, fire)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", logging.Err(err))
		}
	}
}

func (w *DirWatcher) schedule(path string, fire func(string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() { fire(path) })
}

func (w *DirWatcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for p, t := range w.pending {
		t.Stop()
		delete(w.pending, p)
	}
}

func newWatchCmd(deps CommandDependencies) *cobra.Command {
	flags := &protonateFlags{}
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch DIR",
		Short: "Protonate PDB files as they appear in a directory",
		Long: "Watch DIR and protonate every .pdb/.ent file once it stops changing.\n" +
			"Outputs carry --suffix and are not picked up again. Stop with Ctrl-C.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if err := flags.validate(); err != nil {
				return err
			}
			if flags.suffix == "" {
				return errors.New(errors.ErrCodeValidation, "watch needs a non-empty --suffix to tell outputs apart")
			}
			if debounce <= 0 {
				return errors.New(errors.ErrCodeValidation, "debounce must be positive")
			}
			dir := args[0]
			if info, err := os.Stat(dir); err != nil || !info.IsDir() {
				return errors.New(errors.ErrCodeValidation, "not a directory").WithDetail(dir)
			}
			if flags.outDir != "" {
				if err := os.MkdirAll(flags.outDir, 0o755); err != nil {
					return errors.Wrap(err, errors.ErrCodeStructureWrite, "cannot create output directory").WithDetail(flags.outDir)
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			svc, release, err := deps.Service(ctx, cliCtx, protonation.WithNotifier(protonation.MultiNotifier{
				protonation.NewLogNotifier(cliCtx.Logger),
				protonation.NewWriterNotifier(cmd.ErrOrStderr()),
			}))
			if err != nil {
				return err
			}
			defer release()

			opts := flags.options(cmd, cliCtx)
			watcher := NewDirWatcher(dir, flags.suffix, debounce, cliCtx.Logger)
			return watcher.Run(ctx, func(path string) {
				summary := protonateFiles(cmd, svc, []string{path}, flags, opts, cliCtx.Logger)
				if err := PrintResult(cmd, summary); err != nil {
					cliCtx.Logger.Warn("result not printed", logging.Err(err))
				}
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "quiet period before a changed file is processed")
	return cmd
}

//Personal.AI order the ending
