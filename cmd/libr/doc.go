package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/omniscope/libr/internal/model"
	"github.com/omniscope/libr/internal/ui"
)

var docCmd = &cobra.Command{
	Use:   "doc",
	Short: "Create, move, tag, and detach documents",
}

var docCreateCmd = &cobra.Command{
	Use:   "create <folder> <title>",
	Short: "Create a metadata-only document (no file)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		s := mustOpen(ctx)
		defer s.Close()

		folderID, err := s.resolveFolder(args[0])
		if err != nil {
			fail(err)
		}
		doc, err := s.mutator.CreateDocument(ctx, folderID, args[1])
		if err != nil {
			fail(err)
		}
		fmt.Printf("%s Created document %q (%s)\n", ui.RenderPass("✓"), doc.Title, doc.ID)
	},
}

var docMoveCmd = &cobra.Command{
	Use:   "mv <document-id> <folder>",
	Short: "Move a document to another folder",
	Long: `Move a document. A document that never had a file changes only index
ownership; a present document's file is moved into the target directory,
resolving name collisions with a numeric suffix.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		s := mustOpen(ctx)
		defer s.Close()

		folderID, err := s.resolveFolder(args[1])
		if err != nil {
			fail(err)
		}
		doc, err := s.mutator.MoveDocument(ctx, args[0], folderID)
		if err != nil {
			fail(err)
		}
		if doc.Presence.State == model.StatePresent {
			fmt.Printf("%s Moved %q to %s\n", ui.RenderPass("✓"), doc.Title, doc.Presence.Path)
		} else {
			fmt.Printf("%s Moved %q\n", ui.RenderPass("✓"), doc.Title)
		}
	},
}

var docDetachCmd = &cobra.Command{
	Use:   "detach <document-id>",
	Short: "Detach a missing document's file permanently",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		s := mustOpen(ctx)
		defer s.Close()

		doc, err := s.mutator.DetachDocument(ctx, args[0])
		if err != nil {
			fail(err)
		}
		fmt.Printf("%s Detached %q; record kept without a file\n", ui.RenderPass("✓"), doc.Title)
	},
}

var docTagCmd = &cobra.Command{
	Use:   "tag <document-id> <virtual-folder>",
	Short: "Add a document to a virtual folder",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		s := mustOpen(ctx)
		defer s.Close()

		folderID, err := s.resolveFolder(args[1])
		if err != nil {
			fail(err)
		}
		if err := s.mutator.AddToVirtualFolder(ctx, args[0], folderID); err != nil {
			fail(err)
		}
		fmt.Printf("%s Tagged\n", ui.RenderPass("✓"))
	},
}

var docUntagCmd = &cobra.Command{
	Use:   "untag <document-id> <virtual-folder>",
	Short: "Remove a document from a virtual folder",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		s := mustOpen(ctx)
		defer s.Close()

		folderID, err := s.resolveFolder(args[1])
		if err != nil {
			fail(err)
		}
		if err := s.mutator.RemoveFromVirtualFolder(ctx, args[0], folderID); err != nil {
			fail(err)
		}
		fmt.Printf("%s Untagged\n", ui.RenderPass("✓"))
	},
}

var docListCmd = &cobra.Command{
	Use:   "ls",
	Short: "List documents with presence state",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		s := mustOpen(ctx)
		defer s.Close()

		docs, err := s.db.ListDocuments(ctx)
		if err != nil {
			fail(err)
		}
		for _, d := range docs {
			glyph := ui.RenderPass("●")
			detail := d.Presence.Path
			switch d.Presence.State {
			case model.StateNever:
				glyph = ui.RenderDim("○")
				detail = ui.RenderDim("no file")
			case model.StateMissing:
				glyph = ui.RenderWarn("◌")
				detail = ui.RenderWarn("missing: " + d.Presence.Path)
			}
			fmt.Printf("%s %-40s %s %s\n", glyph, d.Title, ui.RenderDim(d.ID), detail)
		}
	},
}

func init() {
	docCmd.AddCommand(docCreateCmd)
	docCmd.AddCommand(docMoveCmd)
	docCmd.AddCommand(docDetachCmd)
	docCmd.AddCommand(docTagCmd)
	docCmd.AddCommand(docUntagCmd)
	docCmd.AddCommand(docListCmd)
	rootCmd.AddCommand(docCmd)
}
