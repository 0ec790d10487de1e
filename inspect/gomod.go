package inspect

import (
	"os"
	"path"
	"path/filepath"

	"golang.org/x/mod/modfile"
	"golang.org/x/mod/module"
)

// goDefaultVersion is used when packaging a Go project, since go.mod
// carries no version of its own. Callers may override it.
const goDefaultVersion = "0.1.0"

func inspectGo(root string) (ProjectMetadata, error) {
	p := filepath.Join(root, "go.mod")
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return ProjectMetadata{}, ErrManifestNotFound
		}
		return ProjectMetadata{}, &ParseError{Path: p, Reason: "cannot read manifest", Err: err}
	}

	f, err := modfile.Parse("go.mod", data, nil)
	if err != nil {
		return ProjectMetadata{}, &ParseError{Path: p, Reason: "invalid go.mod", Err: err}
	}
	if f.Module == nil || f.Module.Mod.Path == "" {
		return ProjectMetadata{}, &ParseError{Path: p, Reason: "missing module directive"}
	}

	name := moduleBase(f.Module.Mod.Path)
	return ProjectMetadata{
		Name:       name,
		BinaryName: name,
		Version:    goDefaultVersion,
		Language:   LanguageGo,
	}, nil
}

// moduleBase returns the last element of a module path with any major
// version suffix stripped, so github.com/acme/tool/v2 becomes tool.
func moduleBase(modPath string) string {
	prefix, _, ok := module.SplitPathVersion(modPath)
	if ok {
		modPath = prefix
	}
	return path.Base(modPath)
}
