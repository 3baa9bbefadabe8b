package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type archive struct {
	dataDir string
	textDir string
	scanDir string
}

func newArchive(t *testing.T) *archive {
	t.Helper()
	root := t.TempDir()
	a := &archive{
		dataDir: filepath.Join(root, "data"),
		textDir: filepath.Join(root, "text"),
		scanDir: filepath.Join(root, "scans"),
	}
	require.NoError(t, os.MkdirAll(a.textDir, 0o755))
	require.NoError(t, os.MkdirAll(a.scanDir, 0o755))
	t.Setenv("LETTERS_SCAN_DIR", a.scanDir)
	t.Setenv("LETTERS_IMAGE_BACKEND", "local")
	return a
}

func (a *archive) write(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

// run executes the CLI against the archive's data dir
func (a *archive) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--data-dir", a.dataDir, "--log-level", "error"}, args...))
	err := root.Execute()
	return out.String(), err
}

func (a *archive) seed(t *testing.T) {
	t.Helper()
	a.write(t, a.textDir, "1943-03-05 - Letter to Mother.txt", "He said, \"Hello\" — then left.\n\n\nSigned, Tom")
	a.write(t, a.textDir, "1944-07-01 - From the Front.txt", "All quiet. Hello to everyone.")
	a.write(t, a.scanDir, "1943-03-05 - Letter to Mother - Page 1 of 2.png", "\x89PNG page1")
	a.write(t, a.scanDir, "1943-03-05 - Letter to Mother - Page 2 of 2.png", "\x89PNG page2")

	out, err := a.run(t, "import", "--text-dir", a.textDir)
	require.NoError(t, err)
	require.Contains(t, out, "Imported:  2")
}

func TestImport_Summary(t *testing.T) {
	a := newArchive(t)
	a.write(t, a.textDir, "1943-03-05 - One.txt", "one")
	a.write(t, a.textDir, "1943-04 - Two.txt", "two")
	a.write(t, a.textDir, "1943-05-01 - Three.txt", "three")
	a.write(t, a.textDir, "Undated.txt", "???")

	out, err := a.run(t, "import", "--text-dir", a.textDir, "--scan-dir", a.scanDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported:  3")
	assert.Contains(t, out, "Failed:    1")
}

func TestImport_StrictFailsOnSkippedFiles(t *testing.T) {
	a := newArchive(t)
	a.write(t, a.textDir, "1943-03-05 - One.txt", "one")
	a.write(t, a.textDir, "Undated.txt", "???")

	_, err := a.run(t, "import", "--text-dir", a.textDir, "--strict")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 transcript(s) failed")
}

func TestImport_RequiresTextDir(t *testing.T) {
	a := newArchive(t)

	_, err := a.run(t, "import")
	assert.Error(t, err)
}

func TestSearch_HighlightsMatches(t *testing.T) {
	a := newArchive(t)
	a.seed(t)

	out, err := a.run(t, "search", "--from", "1943-01-01", "--to", "1943-12-31", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "1 letter(s)")
	assert.Contains(t, out, "1943-03-05  Letter to Mother  [#1]")
	assert.Contains(t, out, `He said, "**Hello**" - then left.`)
	assert.Contains(t, out, "(2 scan(s))")
	assert.NotContains(t, out, "From the Front")

	out, err = a.run(t, "search", "zzz")
	require.NoError(t, err)
	assert.Contains(t, out, "No letters found.")
}

func TestSearch_HighlightsNormalizedText(t *testing.T) {
	a := newArchive(t)
	a.write(t, a.textDir, "1943-02-01 - Ration book.txt", "See page2 today.")

	_, err := a.run(t, "import", "--text-dir", a.textDir)
	require.NoError(t, err)

	out, err := a.run(t, "search", "page2")
	require.NoError(t, err)
	assert.Contains(t, out, "See **page 2** today.")
}

func TestSearch_MostRecentFirst(t *testing.T) {
	a := newArchive(t)
	a.seed(t)

	out, err := a.run(t, "search", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "2 letter(s)")
	assert.Less(t, bytes.Index([]byte(out), []byte("From the Front")), bytes.Index([]byte(out), []byte("Letter to Mother")))
}

func TestSearch_FullText(t *testing.T) {
	a := newArchive(t)
	a.seed(t)

	out, err := a.run(t, "search", "--fulltext", "quiet")
	require.NoError(t, err)
	assert.Contains(t, out, "From the Front")
	assert.NotContains(t, out, "Letter to Mother")
}

func TestSearch_ReversedRange(t *testing.T) {
	a := newArchive(t)

	_, err := a.run(t, "search", "--from", "1944-01-01", "--to", "1943-01-01")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid date range")

	_, err = a.run(t, "search", "--from", "March 1943")
	assert.Error(t, err)
}

func TestStats(t *testing.T) {
	a := newArchive(t)
	a.seed(t)

	out, err := a.run(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Letters in database: 2")
	assert.Contains(t, out, "Letters in index:    2")
	assert.Contains(t, out, "Date range:          1943-03-05 to 1944-07-01")
	assert.Contains(t, out, "Import runs:         1")
}

func TestReindex(t *testing.T) {
	a := newArchive(t)
	a.seed(t)

	out, err := a.run(t, "reindex")
	require.NoError(t, err)
	assert.Contains(t, out, "Found 2 letters in database")
	assert.Contains(t, out, "Letters indexed: 2")
}

func TestShow(t *testing.T) {
	a := newArchive(t)
	a.seed(t)

	out, err := a.run(t, "show", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "#1  1943-03-05  Letter to Mother")
	assert.Contains(t, out, "Scan:   1943-03-05 - Letter to Mother - Page 1 of 2.png")
	assert.Contains(t, out, "He said, \"Hello\" - then left.\n\nSigned, Tom")

	_, err = a.run(t, "show", "99")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "letter not found: 99")

	_, err = a.run(t, "show", "abc")
	assert.Error(t, err)
}

func TestExportScans(t *testing.T) {
	a := newArchive(t)
	a.seed(t)
	outDir := filepath.Join(t.TempDir(), "export")

	out, err := a.run(t, "export-scans", "1", "--out", outDir)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote")

	data, err := os.ReadFile(filepath.Join(outDir, "1943-03-05 - Letter to Mother - Page 2 of 2.png"))
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG page2", string(data))
}

func TestExportScans_ReportsMissingPages(t *testing.T) {
	a := newArchive(t)
	a.seed(t)
	require.NoError(t, os.Remove(filepath.Join(a.scanDir, "1943-03-05 - Letter to Mother - Page 1 of 2.png")))
	outDir := filepath.Join(t.TempDir(), "export")

	out, err := a.run(t, "export-scans", "1", "--out", outDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 scan(s)")
	assert.Contains(t, out, "failed  1943-03-05 - Letter to Mother - Page 1 of 2.png")
	assert.FileExists(t, filepath.Join(outDir, "1943-03-05 - Letter to Mother - Page 2 of 2.png"))
}

func TestServe_RequiresPassword(t *testing.T) {
	a := newArchive(t)
	t.Setenv("LETTERS_PASSWORD", "")

	_, err := a.run(t, "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no password configured")
}

func TestRootCmd_HasCommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"import", "search", "serve", "reindex", "stats", "show", "export-scans"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("data-dir"))
	assert.NotNil(t, root.PersistentFlags().Lookup("log-level"))
}
