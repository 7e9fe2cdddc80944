package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/omniscope/libr/internal/library"
	"github.com/omniscope/libr/internal/model"
	"github.com/omniscope/libr/internal/mutate"
	"github.com/omniscope/libr/internal/store"
	"github.com/omniscope/libr/internal/ui"
)

var initName string
var initTemplate string

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Create a new library in a directory",
	Long: `Initialize a library: creates the .libr/ metadata directory, the index
database, and the library-root folder record. An optional folder template
(research, personal, technical) scaffolds a starting hierarchy.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "."
		if len(args) == 1 {
			path = args[0]
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		name := initName
		if name == "" {
			name = "library"
		}

		root, err := library.Init(path, name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		db, err := store.Open(root.DatabasePath())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()

		manifest, err := root.ReadManifest()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		rootFolder := model.NewFolder(name, model.KindLibraryRoot)
		rootFolder.LibraryID = manifest.ID
		ctx := context.Background()
		if err := db.CreateFolder(ctx, rootFolder); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating root folder: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Initialized library %q at %s\n", ui.RenderPass("✓"), name, root.Path())

		if initTemplate != "" {
			tpl := mutate.TemplateByName(initTemplate)
			if tpl == nil {
				fmt.Fprintf(os.Stderr, "Error: unknown template %q\n", initTemplate)
				os.Exit(1)
			}
			if err := db.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if err := os.Chdir(root.Path()); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			s, err := openLibrary(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			defer s.Close()

			created, err := s.mutator.ScaffoldTemplate(ctx, tpl)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error scaffolding template: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("%s Scaffolded %d folders from template %q\n",
				ui.RenderPass("✓"), len(created), tpl.Name)
		}
	},
}

func init() {
	initCmd.Flags().StringVarP(&initName, "name", "n", "", "library name (default: \"library\")")
	initCmd.Flags().StringVarP(&initTemplate, "template", "t", "", "folder template: research, personal, technical")
	rootCmd.AddCommand(initCmd)
}
