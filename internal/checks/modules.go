package checks

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// TopLevelModules lists the importable units directly under codeDir.
//
// For Python these are the dotted module names of the top-level .py files
// (package "pyvenice" with chat.py yields "pyvenice.chat"), excluding
// __init__.py. For Go they are the package paths of codeDir and each
// directory below it that holds non-test .go files, in "./pkg" form.
func TopLevelModules(fs afero.Fs, root, codeDir, language string) ([]string, error) {
	dir := filepath.Join(root, codeDir)
	switch language {
	case "go":
		return goPackages(fs, dir, codeDir)
	case "python", "":
		return pythonModules(fs, dir, codeDir)
	default:
		return nil, fmt.Errorf("unsupported language %q", language)
	}
}

func pythonModules(fs afero.Fs, dir, codeDir string) ([]string, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	pkg := strings.ReplaceAll(filepath.ToSlash(filepath.Clean(codeDir)), "/", ".")
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".py" || name == "__init__.py" {
			continue
		}
		out = append(out, pkg+"."+strings.TrimSuffix(name, ".py"))
	}
	sort.Strings(out)
	return out, nil
}

func goPackages(fs afero.Fs, dir, codeDir string) ([]string, error) {
	seen := map[string]bool{}
	err := afero.Walk(fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path != dir && skipDir(info.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		name := info.Name()
		if filepath.Ext(name) != ".go" || strings.HasSuffix(name, "_test.go") {
			return nil
		}
		rel, err := filepath.Rel(dir, filepath.Dir(path))
		if err != nil {
			return err
		}
		pkg := filepath.ToSlash(filepath.Join(codeDir, rel))
		if pkg != "." {
			pkg = "./" + pkg
		}
		seen[pkg] = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}
