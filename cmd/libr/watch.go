package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/omniscope/libr/internal/logging"
	"github.com/omniscope/libr/internal/reconcile"
	"github.com/omniscope/libr/internal/ui"
	"github.com/omniscope/libr/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the library and sync changes live",
	Long: `Watch the library directory for changes and keep the index current.
Change bursts are debounced; a remove plus a same-named create within the
window is treated as one rename. Runs until interrupted. If the OS watch
fails the command reports a warning and exits; the library stays usable
through manual sync.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s := mustOpen(ctx)
		defer s.Close()

		logger := logging.New("[watch] ", s.cfg.LogFile)
		w := watch.New(s.root, s.cfg, logger)
		if err := w.Start(ctx); err != nil {
			fail(fmt.Errorf("failed to start watcher: %w", err))
		}
		defer w.Stop()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		fmt.Printf("%s Watching %s (Ctrl-C to stop)\n", ui.RenderAccent("👁"), s.root.Path())

		for {
			select {
			case <-sigCh:
				fmt.Printf("\n%s Stopped\n", ui.RenderPass("✓"))
				return
			case a, ok := <-w.Events():
				if !ok {
					fmt.Fprintf(os.Stderr, "Warning: live sync stopped; run 'libr sync' to reconcile\n")
					return
				}
				handleAdvisory(ctx, s, a)
			}
		}
	},
}

// handleAdvisory feeds one watcher advisory through the same repairs a
// disk-wins sync would apply.
func handleAdvisory(ctx context.Context, s *session, a watch.Advisory) {
	switch a.Kind {
	case watch.FileRenamed:
		fmt.Printf("%s rename %s -> %s\n", ui.RenderAccent("»"), a.OldPath, a.Path)
	case watch.FileAppeared:
		fmt.Printf("%s new file %s\n", ui.RenderAccent("+"), a.Path)
	case watch.FileVanished:
		fmt.Printf("%s vanished %s\n", ui.RenderWarn("!"), a.Path)
	case watch.FolderAppeared:
		fmt.Printf("%s new folder %s\n", ui.RenderAccent("+"), a.Path)
	case watch.FolderVanished:
		fmt.Printf("%s folder gone %s\n", ui.RenderWarn("-"), a.Path)
	}

	disk, err := s.rec.Scan(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		return
	}
	rep, err := s.rec.Diff(ctx, disk)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		return
	}
	if rep.IsClean() {
		return
	}
	if _, err := s.rec.Apply(ctx, rep, reconcile.ModeDiskWins); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
