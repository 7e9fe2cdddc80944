package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/omniscope/libr/internal/tree"
	"github.com/omniscope/libr/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show library identity and sync state",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		s := mustOpen(ctx)
		defer s.Close()

		manifest, err := s.root.ReadManifest()
		if err != nil {
			fail(err)
		}

		ghosts := 0
		s.tree.Walk(func(n *tree.Node, _ int) { ghosts += n.GhostCount })

		fmt.Printf("Library:  %s (%s)\n", manifest.Name, manifest.ID)
		fmt.Printf("Root:     %s\n", s.root.Path())
		fmt.Printf("Folders:  %d\n", s.tree.Len())
		fmt.Printf("Docs:     %d (%d without file)\n", s.tree.Root().SubtreeDocs, ghosts)

		disk, err := s.rec.Scan(ctx)
		if err != nil {
			fail(err)
		}
		rep, err := s.rec.Diff(ctx, disk)
		if err != nil {
			fail(err)
		}
		if rep.IsClean() {
			fmt.Printf("Sync:     %s in sync (%d documents on disk)\n", ui.RenderPass("✓"), rep.InSync)
		} else {
			fmt.Printf("Sync:     %s drift detected (%s); run 'libr sync'\n",
				ui.RenderWarn("!"), rep.Summary())
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
