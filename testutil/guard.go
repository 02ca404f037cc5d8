// Package testutil holds helpers that enforce package boundaries from tests.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// ModulePath is the import path prefix of this module.
const ModulePath = "datamanager"

// Predicate reports whether an import path is forbidden.
type Predicate func(importPath string) bool

// InternalImport matches packages under any internal/ directory of the module.
func InternalImport(path string) bool {
	return strings.HasPrefix(path, ModulePath+"/internal/")
}

// ThirdPartyImport matches imports from outside the standard library and this
// module. Standard library paths have no dot in their first element.
func ThirdPartyImport(path string) bool {
	first, _, _ := strings.Cut(path, "/")
	return first != ModulePath && strings.Contains(first, ".")
}

// Under matches the given import path prefixes.
func Under(prefixes ...string) Predicate {
	return func(path string) bool {
		for _, p := range prefixes {
			if path == p || strings.HasPrefix(path, p+"/") {
				return true
			}
		}
		return false
	}
}

// AnyOf matches when any predicate matches.
func AnyOf(preds ...Predicate) Predicate {
	return func(path string) bool {
		for _, p := range preds {
			if p(path) {
				return true
			}
		}
		return false
	}
}

// AssertNoDirectImports parses the non-test Go files of dir and fails when an
// import satisfies forbidden. Build tags are ignored.
func AssertNoDirectImports(t testing.TB, dir string, forbidden Predicate, reason string) {
	t.Helper()
	viols, err := directImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	failIfViolations(t, "direct imports", reason, viols)
}

// AssertNoTransitiveDependency loads pattern with its dependency graph and fails
// when any reachable package satisfies forbidden.
func AssertNoTransitiveDependency(t testing.TB, pattern string, forbidden Predicate, reason string) {
	t.Helper()
	viols, err := transitiveViolations(pattern, forbidden)
	if err != nil {
		t.Fatalf("load %s: %v", pattern, err)
	}
	failIfViolations(t, "transitive dependencies", reason, viols)
}

func directImportViolations(dir string, forbidden Predicate) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range f.Imports {
			if ip := strings.Trim(imp.Path.Value, `"`); forbidden(ip) {
				viols = append(viols, ip+" (in "+name+")")
			}
		}
	}
	return viols, nil
}

func transitiveViolations(pattern string, forbidden Predicate) ([]string, error) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports | packages.NeedDeps}
	roots, err := packages.Load(cfg, pattern)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var viols []string
	var visit func(*packages.Package)
	visit = func(p *packages.Package) {
		if seen[p.PkgPath] {
			return
		}
		seen[p.PkgPath] = true
		if forbidden(p.PkgPath) {
			viols = append(viols, p.PkgPath)
		}
		for _, imp := range p.Imports {
			visit(imp)
		}
	}
	for _, root := range roots {
		for _, imp := range root.Imports {
			visit(imp)
		}
	}
	sort.Strings(viols)
	return viols, nil
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failIfViolations(t fatalLogger, kind, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("forbidden %s (%s):\n%s", kind, reason, strings.Join(viols, "\n"))
	}
}
