package mutate

import (
	"context"
	"strings"

	"github.com/omniscope/libr/internal/errs"
	"github.com/omniscope/libr/internal/model"
)

// FolderTemplate is a named folder scaffold applied to a fresh library.
type FolderTemplate struct {
	Name    string
	Folders []string // slash-separated paths, parents listed implicitly
}

// Templates are the built-in scaffolds.
var Templates = []FolderTemplate{
	{
		Name: "research",
		Folders: []string{
			"Papers",
			"Papers/To Read",
			"Papers/Archive",
			"Books",
			"Notes",
		},
	},
	{
		Name: "personal",
		Folders: []string{
			"Books",
			"Books/Fiction",
			"Books/Non-Fiction",
			"Magazines",
			"Manuals",
		},
	},
	{
		Name: "technical",
		Folders: []string{
			"References",
			"Specifications",
			"Books",
			"Papers",
		},
	},
}

// TemplateByName returns the template with the given name, or nil.
func TemplateByName(name string) *FolderTemplate {
	for i := range Templates {
		if Templates[i].Name == name {
			return &Templates[i]
		}
	}
	return nil
}

// ScaffoldTemplate creates the template's physical folders under the library
// root. Paths are created parent-first; folders that already exist are
// skipped. Returns the folders actually created.
func (m *Mutator) ScaffoldTemplate(ctx context.Context, tpl *FolderTemplate) ([]*model.Folder, error) {
	root := m.tree.Root()
	if root == nil {
		return nil, errs.Validationf("library has no root folder")
	}

	var created []*model.Folder
	for _, p := range tpl.Folders {
		parentID := root.Folder.ID
		if dir := parentDir(p); dir != "" {
			n, ok := m.tree.GetByPath(dir)
			if !ok {
				return created, errs.Validationf("template lists %q before its parent %q", p, dir)
			}
			parentID = n.Folder.ID
		}
		if _, ok := m.tree.GetByPath(p); ok {
			continue
		}

		f, err := m.CreateFolder(ctx, parentID, baseName(p), model.KindPhysical)
		if err != nil {
			return created, err
		}
		created = append(created, f)
	}
	return created, nil
}

func parentDir(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[:i]
	}
	return ""
}

func baseName(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}
