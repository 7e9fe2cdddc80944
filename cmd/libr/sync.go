package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/omniscope/libr/internal/reconcile"
	"github.com/omniscope/libr/internal/ui"
)

var syncDiskWins bool
var syncDryRun bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the index against the disk",
	Long: `Scan the library directory, diff it against the index, and apply
repairs. Documents whose file vanished are always marked missing. With
--disk-wins every untracked directory and file is imported and every
detected move adopted without prompting; otherwise each import category is
confirmed interactively. --dry-run reports and changes nothing.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		s := mustOpen(ctx)
		defer s.Close()

		disk, err := s.rec.Scan(ctx)
		if err != nil {
			fail(err)
		}
		rep, err := s.rec.Diff(ctx, disk)
		if err != nil {
			fail(err)
		}

		printReport(rep)
		if rep.IsClean() {
			fmt.Printf("%s Library is in sync (%d documents)\n", ui.RenderPass("✓"), rep.InSync)
			return
		}
		if syncDryRun {
			return
		}

		mode := reconcile.ModeDiskWins
		if !syncDiskWins {
			var apply bool
			form := huh.NewConfirm().
				Title("Apply disk-wins repairs?").
				Description(fmt.Sprintf("import %d dirs and %d files, remove %d folder records, adopt %d moves",
					len(rep.UntrackedDirs), len(rep.UntrackedFiles),
					len(rep.OrphanedFolders), len(rep.Moved))).
				Value(&apply)
			if err := form.Run(); err != nil {
				fail(err)
			}
			if !apply {
				mode = reconcile.ModeMarkOnly
			}
		}

		applied, err := s.rec.Apply(ctx, rep, mode)
		if err != nil {
			fail(err)
		}
		fmt.Printf("%s Applied: %d folders imported, %d removed, %d docs imported, %d marked missing, %d relinked, %d moves adopted\n",
			ui.RenderPass("✓"), applied.FoldersImported, applied.FoldersRemoved,
			applied.DocsImported, applied.DocsMarked, applied.DocsRelinked, applied.DocsMoved)
	},
}

func printReport(rep *reconcile.Report) {
	for _, d := range rep.UntrackedDirs {
		fmt.Printf("%s untracked dir   %s\n", ui.RenderAccent("+"), d)
	}
	for _, f := range rep.OrphanedFolders {
		fmt.Printf("%s orphaned folder %s\n", ui.RenderWarn("-"), f.DiskPath)
	}
	for _, f := range rep.UntrackedFiles {
		fmt.Printf("%s untracked file  %s\n", ui.RenderAccent("+"), f)
	}
	for _, d := range rep.MissingFiles {
		fmt.Printf("%s missing file    %s\n", ui.RenderWarn("!"), d.Presence.Path)
	}
	for _, d := range rep.Relinked {
		fmt.Printf("%s reappeared      %s\n", ui.RenderPass("~"), d.Presence.Path)
	}
	for _, m := range rep.Moved {
		fmt.Printf("%s moved           %s -> %s\n", ui.RenderAccent("»"), m.Doc.Presence.Path, m.NewPath)
	}
}

func init() {
	syncCmd.Flags().BoolVar(&syncDiskWins, "disk-wins", false, "apply all repairs without prompting")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "report divergences without changing anything")
	rootCmd.AddCommand(syncCmd)
}
