package inspect

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Fields that workspace members may inherit from [workspace.package]
// are typed any: they hold either a string or { workspace = true }.
type cargoManifest struct {
	Package   *cargoPackage   `toml:"package"`
	Bin       []cargoBin      `toml:"bin"`
	Workspace *cargoWorkspace `toml:"workspace"`
}

type cargoPackage struct {
	Name        string `toml:"name"`
	Version     any    `toml:"version"`
	Description any    `toml:"description"`
	License     any    `toml:"license"`
	Homepage    any    `toml:"homepage"`
	Repository  any    `toml:"repository"`
}

type cargoBin struct {
	Name string `toml:"name"`
}

type cargoWorkspace struct {
	Package *cargoPackage `toml:"package"`
}

func inspectRust(root string) (ProjectMetadata, error) {
	path := filepath.Join(root, "Cargo.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ProjectMetadata{}, ErrManifestNotFound
		}
		return ProjectMetadata{}, &ParseError{Path: path, Reason: "cannot read manifest", Err: err}
	}

	var m cargoManifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return ProjectMetadata{}, &ParseError{Path: path, Reason: "invalid TOML", Err: err}
	}
	if m.Package == nil {
		return ProjectMetadata{}, &ParseError{Path: path, Reason: "missing [package] table (virtual workspace manifests are not packageable)"}
	}
	if m.Package.Name == "" {
		return ProjectMetadata{}, &ParseError{Path: path, Reason: "missing package.name"}
	}

	var inherited *cargoPackage
	if m.Workspace != nil {
		inherited = m.Workspace.Package
	}
	version, err := inheritableField(m.Package.Version, inherited, "version")
	if err != nil {
		return ProjectMetadata{}, &ParseError{Path: path, Reason: err.Error()}
	}
	if version == "" {
		return ProjectMetadata{}, &ParseError{Path: path, Reason: "missing package.version"}
	}

	meta := ProjectMetadata{
		Name:       m.Package.Name,
		BinaryName: m.Package.Name,
		Version:    version,
		Language:   LanguageRust,
	}
	if len(m.Bin) > 0 && m.Bin[0].Name != "" {
		meta.BinaryName = m.Bin[0].Name
	}

	// Optional fields: skip anything that cannot be resolved rather
	// than failing the inspection.
	meta.Description, _ = inheritableField(m.Package.Description, inherited, "description")
	meta.License, _ = inheritableField(m.Package.License, inherited, "license")
	meta.Homepage, _ = inheritableField(m.Package.Homepage, inherited, "homepage")
	if meta.Homepage == "" {
		meta.Homepage, _ = inheritableField(m.Package.Repository, inherited, "repository")
	}
	return meta, nil
}

// inheritableField resolves a package field that is either a literal
// string or { workspace = true }, in which case the value comes from
// [workspace.package].
func inheritableField(v any, inherited *cargoPackage, field string) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case map[string]any:
		ws, ok := t["workspace"].(bool)
		if !ok || !ws {
			return "", fmt.Errorf("package.%s has an unsupported form", field)
		}
		if inherited == nil {
			return "", fmt.Errorf("package.%s inherits from the workspace, but [workspace.package] is missing", field)
		}
		val, err := inheritableField(fieldByName(inherited, field), nil, field)
		if err != nil {
			return "", err
		}
		return val, nil
	}
	return "", fmt.Errorf("package.%s has an unsupported form", field)
}

func fieldByName(p *cargoPackage, field string) any {
	switch field {
	case "version":
		return p.Version
	case "description":
		return p.Description
	case "license":
		return p.License
	case "homepage":
		return p.Homepage
	case "repository":
		return p.Repository
	}
	return nil
}
