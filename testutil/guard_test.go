package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPredicates(t *testing.T) {
	cases := []struct {
		pred Predicate
		in   string
		want bool
	}{
		{InternalImport, "datamanager/internal/core", true},
		{InternalImport, "datamanager/pkg/domain", false},
		{InternalImport, "example.com/other/internal/x", false},
		{ThirdPartyImport, "github.com/jackc/pgx/v5", true},
		{ThirdPartyImport, "golang.org/x/sync/errgroup", true},
		{ThirdPartyImport, "net/http", false},
		{ThirdPartyImport, "datamanager/internal/blob", false},
		{Under("datamanager/internal/infra"), "datamanager/internal/infra/blob/s3", true},
		{Under("datamanager/internal/infra"), "datamanager/internal/infrastructure", false},
		{AnyOf(InternalImport, ThirdPartyImport), "modernc.org/sqlite", true},
		{AnyOf(), "fmt", false},
	}
	for i, c := range cases {
		if got := c.pred(c.in); got != c.want {
			t.Fatalf("case %d: predicate(%q)=%v want %v", i, c.in, got, c.want)
		}
	}
}

func writePackage(t *testing.T, imports ...string) string {
	t.Helper()
	dir := t.TempDir()
	var b strings.Builder
	b.WriteString("package tmp\n\nimport (\n")
	for _, imp := range imports {
		fmt.Fprintf(&b, "\t_ %q\n", imp)
	}
	b.WriteString(")\n")
	if err := os.WriteFile(filepath.Join(dir, "x.go"), []byte(b.String()), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	test := "package tmp\n\nimport _ \"datamanager/internal/core\"\n"
	if err := os.WriteFile(filepath.Join(dir, "x_test.go"), []byte(test), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return dir
}

func TestDirectImportViolations(t *testing.T) {
	dir := writePackage(t, "fmt", "datamanager/internal/blob")
	viols, err := directImportViolations(dir, InternalImport)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || !strings.HasPrefix(viols[0], "datamanager/internal/blob") {
		t.Fatalf("expected one violation from x.go only, got %v", viols)
	}
	AssertNoDirectImports(t, writePackage(t, "fmt"), InternalImport, "clean package")
}

type recordingFatal struct{ msg string }

func (r *recordingFatal) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func TestFailIfViolations(t *testing.T) {
	var r recordingFatal
	failIfViolations(&r, "direct imports", "reason", nil)
	if r.msg != "" {
		t.Fatalf("unexpected failure %q", r.msg)
	}
	failIfViolations(&r, "direct imports", "domain stays pure", []string{"a", "b"})
	if !strings.Contains(r.msg, "domain stays pure") || !strings.Contains(r.msg, "a\nb") {
		t.Fatalf("unexpected message %q", r.msg)
	}
}

func TestAssertNoTransitiveDependency(t *testing.T) {
	AssertNoTransitiveDependency(t, "datamanager/pkg/domain", ThirdPartyImport, "domain depends on the standard library only")
}
