package artifact

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outboxapi/internal/apperr"
)

func TestStore_FolderFor(t *testing.T) {
	s := NewStore("/data/outgoing", zerolog.Nop())

	tests := []struct {
		formatted string
		want      string
	}{
		{"42-01", "/data/outgoing/42-01"},
		{"ОБЩ/10", "/data/outgoing/ОБЩ_10"},
		{"../../etc", "/data/outgoing/___etc"},
		{"..", "/data/outgoing/_"},
	}
	for _, tt := range tests {
		t.Run(tt.formatted, func(t *testing.T) {
			got := s.FolderFor(tt.formatted)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, "/data/outgoing", filepath.Dir(got))
		})
	}
}

func TestStore_Write(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root, zerolog.Nop())

	placed, err := s.Write(context.Background(), "42-01", Bundle{
		ArtifactName: "исх_42-01.pdf",
		Artifact:     []byte("pdf"),
		Signature:    []byte("sig"),
		Attachments:  []Attachment{{Name: "приложение.xlsx", Data: []byte("xlsx")}},
	})
	require.NoError(t, err)
	dir := placed.Folder
	assert.Equal(t, filepath.Join(root, "42-01"), dir)
	assert.True(t, placed.Created)
	assert.Len(t, placed.Files, 3)

	for name, want := range map[string]string{
		"исх_42-01.pdf":     "pdf",
		"исх_42-01.pdf.sig": "sig",
		"приложение.xlsx":   "xlsx",
	} {
		b, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Equal(t, want, string(b))
	}
}

func TestStore_WritePermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	root := t.TempDir()
	require.NoError(t, os.Chmod(root, 0o500))
	t.Cleanup(func() { _ = os.Chmod(root, 0o750) })

	s := NewStore(root, zerolog.Nop())
	_, err := s.Write(context.Background(), "42-01", Bundle{ArtifactName: "a.pdf", Artifact: []byte("x")})
	require.Error(t, err)

	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindStorage, ae.Kind)
	assert.Contains(t, ae.Remediation, "sudo chown -R $(id -u):$(id -g) "+root)
}

func TestStore_Remove(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root, zerolog.Nop())

	placed, err := s.Write(context.Background(), "7-02", Bundle{ArtifactName: "a.pdf", Artifact: []byte("x")})
	require.NoError(t, err)
	dir := placed.Folder

	require.NoError(t, s.Remove(dir))
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, s.Remove(dir), "missing folder is fine")
	assert.NoError(t, s.Remove(""))
	assert.Error(t, s.Remove(root), "root itself is never removed")
	assert.Error(t, s.Remove(filepath.Dir(root)))
}

func TestStore_WriteAttachmentNameClash(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root, zerolog.Nop())

	placed, err := s.Write(context.Background(), "42-01", Bundle{
		ArtifactName: "исх_42-01.pdf",
		Artifact:     []byte("signed pdf"),
		Signature:    []byte("sig"),
		Attachments: []Attachment{
			{Name: "исх_42-01.pdf", Data: []byte("scan")},
			{Name: "исх_42-01.pdf.sig", Data: []byte("stale sig")},
		},
	})
	require.NoError(t, err)

	read := func(name string) string {
		b, err := os.ReadFile(filepath.Join(placed.Folder, name))
		require.NoError(t, err, name)
		return string(b)
	}
	assert.Equal(t, "signed pdf", read("исх_42-01.pdf"))
	assert.Equal(t, "sig", read("исх_42-01.pdf.sig"))
	assert.Equal(t, "scan", read("исх_42-01_2.pdf"))
	assert.Equal(t, "stale sig", read("исх_42-01.pdf_2.sig"))
}

func TestStore_DiscardKeepsExistingFolder(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root, zerolog.Nop())

	dir := filepath.Join(root, "42-01")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	keep := filepath.Join(dir, "keep.txt")
	require.NoError(t, os.WriteFile(keep, []byte("operator notes"), 0o640))
	// A directory in place of the attachment makes its rename fail.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "scan.pdf"), 0o750))

	placed, err := s.Write(context.Background(), "42-01", Bundle{
		ArtifactName: "исх_42-01.pdf",
		Artifact:     []byte("pdf"),
		Signature:    []byte("sig"),
		Attachments:  []Attachment{{Name: "scan.pdf", Data: []byte("scan")}},
	})
	require.Error(t, err)
	assert.False(t, placed.Created)
	assert.Len(t, placed.Files, 2)

	require.NoError(t, s.Discard(placed))
	assert.FileExists(t, keep)
	assert.DirExists(t, filepath.Join(dir, "scan.pdf"))
	assert.NoFileExists(t, filepath.Join(dir, "исх_42-01.pdf"))
	assert.NoFileExists(t, filepath.Join(dir, "исх_42-01.pdf.sig"))
}

func TestStore_DiscardCreatedFolder(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root, zerolog.Nop())

	placed, err := s.Write(context.Background(), "9-03", Bundle{ArtifactName: "a.pdf", Artifact: []byte("x")})
	require.NoError(t, err)
	require.True(t, placed.Created)

	require.NoError(t, s.Discard(placed))
	assert.NoDirExists(t, placed.Folder)
	assert.NoError(t, s.Discard(Placement{}))
}
