package core_test

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCoreImportsOnlyStdlib keeps pkg/core free of third-party and module
// imports so every other package can depend on it.
func TestCoreImportsOnlyStdlib(t *testing.T) {
	fset := token.NewFileSet()

	entries, err := os.ReadDir(".")
	require.NoError(t, err)

	checked := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(fset, filepath.Join(".", name), nil, parser.ImportsOnly)
		require.NoError(t, err, name)
		checked++

		for _, imp := range f.Imports {
			path := strings.Trim(imp.Path.Value, `"`)
			// stdlib paths have no dot in the first element
			first := strings.SplitN(path, "/", 2)[0]
			assert.NotContains(t, first, ".", "%s imports non-stdlib package %s", name, path)
		}
	}
	assert.Positive(t, checked)
}
