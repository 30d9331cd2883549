package knowledge

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDoc(t *testing.T, root, space, name, body string) {
	t.Helper()
	dir := filepath.Join(root, space)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
}

func TestIndex(t *testing.T) {
	t.Run("should scan spaces and their markdown documents", func(t *testing.T) {
		root := t.TempDir()
		writeDoc(t, root, "runbooks", "deploy.md", "# Deploy")
		writeDoc(t, root, "runbooks", "rollback.md", "# Rollback")
		writeDoc(t, root, "release-notes", "v1.md", "# v1")
		// Non-markdown files and root-level files are ignored.
		writeDoc(t, root, "runbooks", "notes.txt", "ignored")
		require.NoError(t, os.WriteFile(filepath.Join(root, "stray.md"), []byte("x"), 0644))

		idx, err := NewIndex(root)
		require.NoError(t, err)

		spaces := idx.Spaces()
		require.Len(t, spaces, 2)
		assert.Equal(t, "release-notes", spaces[0].ID)
		assert.Equal(t, "Release Notes", spaces[0].Title)

		runbooks := idx.Space("runbooks")
		require.NotNil(t, runbooks)
		require.Len(t, runbooks.Documents, 2)
		assert.Equal(t, "deploy.md", runbooks.Documents[0].Name)
		assert.Equal(t, "rollback.md", runbooks.Documents[1].Name)
	})

	t.Run("should return nil for an unknown space", func(t *testing.T) {
		idx, err := NewIndex(t.TempDir())
		require.NoError(t, err)
		assert.Nil(t, idx.Space("missing"))
	})

	t.Run("should fail on a missing root", func(t *testing.T) {
		_, err := NewIndex(filepath.Join(t.TempDir(), "missing"))
		assert.Error(t, err)
	})

	t.Run("should pick up new documents on reindex", func(t *testing.T) {
		root := t.TempDir()
		writeDoc(t, root, "runbooks", "deploy.md", "# Deploy")

		idx, err := NewIndex(root)
		require.NoError(t, err)
		require.Len(t, idx.Space("runbooks").Documents, 1)

		writeDoc(t, root, "runbooks", "oncall.md", "# Oncall")
		require.NoError(t, idx.Reindex())
		assert.Len(t, idx.Space("runbooks").Documents, 2)
	})
}

func TestIndex_Render(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, root, "runbooks", "deploy.md", "# Deploy")
	writeDoc(t, root, "runbooks", "rollback.md", "# Rollback")
	writeDoc(t, root, "faq", "billing.md", "# Billing")

	idx, err := NewIndex(root)
	require.NoError(t, err)

	t.Run("should render the selected spaces in order", func(t *testing.T) {
		out := idx.Render([]string{"runbooks", "faq"})
		assert.Equal(t, "## Runbooks\n- deploy.md\n- rollback.md\n\n## Faq\n- billing.md\n", out)
	})

	t.Run("should skip unknown spaces", func(t *testing.T) {
		out := idx.Render([]string{"missing", "faq"})
		assert.Equal(t, "## Faq\n- billing.md\n", out)
	})

	t.Run("should render nothing for an empty selection", func(t *testing.T) {
		assert.Empty(t, idx.Render(nil))
	})
}

func TestWatcher(t *testing.T) {
	t.Run("should reindex after a document changes", func(t *testing.T) {
		root := t.TempDir()
		writeDoc(t, root, "runbooks", "deploy.md", "# Deploy")

		idx, err := NewIndex(root)
		require.NoError(t, err)

		w, err := NewWatcher(idx)
		require.NoError(t, err)
		defer func() { _ = w.Stop() }()

		writeDoc(t, root, "runbooks", "oncall.md", "# Oncall")

		require.Eventually(t, func() bool {
			space := idx.Space("runbooks")
			return space != nil && len(space.Documents) == 2
		}, 5*time.Second, 50*time.Millisecond)
	})

	t.Run("should stop cleanly", func(t *testing.T) {
		idx, err := NewIndex(t.TempDir())
		require.NoError(t, err)

		w, err := NewWatcher(idx)
		require.NoError(t, err)
		require.NoError(t, w.Stop())
		assert.NoError(t, w.Stop())
	})
}
