package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/omniscope/libr/internal/model"
	"github.com/omniscope/libr/internal/mutate"
	"github.com/omniscope/libr/internal/tree"
	"github.com/omniscope/libr/internal/ui"
)

var folderCmd = &cobra.Command{
	Use:   "folder",
	Short: "Create, rename, move, and delete folders",
}

var folderVirtual bool

var folderCreateCmd = &cobra.Command{
	Use:   "create <parent> <name>",
	Short: "Create a folder under a parent",
	Long: `Create a folder. <parent> is a folder id or library-relative path
("/" for the library root). Physical folders get a real directory; pass
--virtual for a grouping-only folder with no directory.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		s := mustOpen(ctx)
		defer s.Close()

		parentID, err := s.resolveFolder(args[0])
		if err != nil {
			fail(err)
		}
		kind := model.KindPhysical
		if folderVirtual {
			kind = model.KindVirtual
		}

		f, err := s.mutator.CreateFolder(ctx, parentID, args[1], kind)
		if err != nil {
			fail(err)
		}
		fmt.Printf("%s Created %s folder %q (%s)\n", ui.RenderPass("✓"), f.Kind, f.Name, f.ID)
	},
}

var folderRenameCmd = &cobra.Command{
	Use:   "rename <folder> <new-name>",
	Short: "Rename a folder, rewriting all contained paths",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		s := mustOpen(ctx)
		defer s.Close()

		id, err := s.resolveFolder(args[0])
		if err != nil {
			fail(err)
		}
		f, err := s.mutator.RenameFolder(ctx, id, args[1])
		if err != nil {
			fail(err)
		}
		fmt.Printf("%s Renamed to %q\n", ui.RenderPass("✓"), f.Name)
	},
}

var folderMoveCmd = &cobra.Command{
	Use:   "move <folder> <new-parent>",
	Short: "Move a folder under a new parent",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		s := mustOpen(ctx)
		defer s.Close()

		id, err := s.resolveFolder(args[0])
		if err != nil {
			fail(err)
		}
		parentID, err := s.resolveFolder(args[1])
		if err != nil {
			fail(err)
		}
		f, err := s.mutator.MoveFolder(ctx, id, parentID)
		if err != nil {
			fail(err)
		}
		fmt.Printf("%s Moved %q to %s\n", ui.RenderPass("✓"), f.Name, displayPath(f))
	},
}

var rmWithFiles bool
var rmYes bool

var folderRmCmd = &cobra.Command{
	Use:   "rm <folder>",
	Short: "Delete a folder",
	Long: `Delete a folder and its descendants from the index. By default the
directory and files stay on disk (they become untracked). With --with-files
the directory is removed from disk as well.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		s := mustOpen(ctx)
		defer s.Close()

		id, err := s.resolveFolder(args[0])
		if err != nil {
			fail(err)
		}
		n, _ := s.tree.Get(id)
		affected, err := s.mutator.PreviewDelete(ctx, id)
		if err != nil {
			fail(err)
		}

		if !rmYes {
			mode := "keep files on disk"
			if rmWithFiles {
				mode = "DELETE files from disk"
			}
			var confirmed bool
			form := huh.NewConfirm().
				Title(fmt.Sprintf("Delete folder %q?", n.Folder.Name)).
				Description(fmt.Sprintf("%d documents affected, %s", affected, mode)).
				Value(&confirmed)
			if err := form.Run(); err != nil {
				fail(err)
			}
			if !confirmed {
				fmt.Println("Aborted.")
				return
			}
		}

		mode := mutate.KeepFiles
		if rmWithFiles {
			mode = mutate.WithFiles
		}
		if err := s.mutator.DeleteFolder(ctx, id, mode); err != nil {
			fail(err)
		}
		fmt.Printf("%s Deleted folder %q (%d documents affected)\n",
			ui.RenderPass("✓"), n.Folder.Name, affected)
	},
}

var folderListCmd = &cobra.Command{
	Use:   "ls",
	Short: "Print the folder tree with document counts",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		s := mustOpen(ctx)
		defer s.Close()

		s.tree.Walk(func(n *tree.Node, depth int) {
			indent := strings.Repeat("  ", depth)
			marker := ""
			if n.Folder.Kind == model.KindVirtual {
				marker = ui.RenderDim(" (virtual)")
			}
			counts := ui.RenderDim(fmt.Sprintf(" [%d docs", n.SubtreeDocs))
			if n.GhostCount > 0 {
				counts += ui.RenderDim(fmt.Sprintf(", %d ghosts", n.GhostCount))
			}
			counts += ui.RenderDim("]")
			fmt.Printf("%s%s%s%s\n", indent, n.Folder.Name, marker, counts)
		})
	},
}

func mustOpen(ctx context.Context) *session {
	s, err := openLibrary(ctx)
	if err != nil {
		fail(err)
	}
	return s
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func displayPath(f *model.Folder) string {
	if f.DiskPath == "" {
		return "/"
	}
	return f.DiskPath
}

func init() {
	folderCreateCmd.Flags().BoolVar(&folderVirtual, "virtual", false, "create a virtual (grouping-only) folder")
	folderRmCmd.Flags().BoolVar(&rmWithFiles, "with-files", false, "also delete the directory and files from disk")
	folderRmCmd.Flags().BoolVarP(&rmYes, "yes", "y", false, "skip confirmation")
	folderCmd.AddCommand(folderCreateCmd)
	folderCmd.AddCommand(folderRenameCmd)
	folderCmd.AddCommand(folderMoveCmd)
	folderCmd.AddCommand(folderRmCmd)
	folderCmd.AddCommand(folderListCmd)
	rootCmd.AddCommand(folderCmd)
}
