package xmlbox

import (
	"bytes"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/stretchr/testify/require"

	"github.com/KimNorgaard/go-xmlbox/internal/testutil"
)

var update = flag.Bool("update", false, "update golden files")

// TestGolden formats every sample document and compares the result, or the
// error for a malformed document, with testdata/<name>.golden.
func TestGolden(t *testing.T) {
	names, err := testutil.Samples()
	require.NoError(t, err)
	require.NotEmpty(t, names)

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			src, err := testutil.ReadTestData(name + ".xml")
			require.NoError(t, err)

			actual, err := Format(src, Indent(2))
			if err != nil {
				actual = []byte(err.Error())
			}

			goldenFile := filepath.Join("testdata", name+".golden")
			// To refresh the golden files, run: go test -run TestGolden -update
			if *update {
				err := os.WriteFile(goldenFile, append(actual, '\n'), 0o644)
				require.NoError(t, err)
			}

			expected, err := os.ReadFile(goldenFile)
			require.NoError(t, err, "Golden file not found. Run with -update to create it.")
			expected = bytes.TrimSuffix(expected, []byte("\n"))

			if !bytes.Equal(expected, actual) {
				dmp := diffmatchpatch.New()
				diffs := dmp.DiffMain(string(expected), string(actual), false)
				t.Errorf("Formatted output does not match %s:\n%s", goldenFile, dmp.DiffPrettyText(diffs))
			}
		})
	}
}

// TestGoldenStable checks that formatting a golden file again is a no-op.
func TestGoldenStable(t *testing.T) {
	files, err := filepath.Glob("testdata/*.golden")
	require.NoError(t, err)

	for _, file := range files {
		src, err := os.ReadFile(file)
		require.NoError(t, err)
		if !bytes.HasPrefix(src, []byte("<")) {
			continue
		}
		t.Run(file, func(t *testing.T) {
			actual, err := Format(src, Indent(2))
			require.NoError(t, err)
			require.Equal(t, string(bytes.TrimSuffix(src, []byte("\n"))), string(actual))
		})
	}
}
