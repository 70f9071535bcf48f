// Package artifact writes registered documents into the outgoing folder tree,
// one folder per formatted number.
package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"outboxapi/internal/apperr"
	"outboxapi/internal/model"
	"outboxapi/internal/storage"
)

// Attachment is an extra file copied next to the artifact.
type Attachment struct {
	Name string
	Data []byte
}

// Bundle is everything written for one registration.
type Bundle struct {
	ArtifactName string
	Artifact     []byte
	Signature    []byte
	Attachments  []Attachment
}

// Store owns the outgoing folder tree.
type Store struct {
	root string
	log  zerolog.Logger
}

func NewStore(root string, log zerolog.Logger) *Store {
	return &Store{root: root, log: log.With().Str("component", "artifact_store").Logger()}
}

// Root is the base directory of the tree.
func (s *Store) Root() string { return s.root }

// FolderFor returns the folder of a formatted number. The number is reduced to
// a single path element so it can never leave the root.
func (s *Store) FolderFor(formatted string) string {
	name := model.SafeName(formatted)
	if strings.Contains(name, "..") {
		name = strings.ReplaceAll(name, "..", "_")
	}
	return filepath.Join(s.root, name)
}

// Placement records what one Write put on disk so a failed registration can
// be undone without touching files that were already there.
type Placement struct {
	Folder  string
	Created bool
	Files   []string
}

// Write stores the bundle and reports what it placed. Each file is written
// atomically; on a failure part way the returned Placement lists the files
// already written so Discard can take them back.
func (s *Store) Write(_ context.Context, formatted string, b Bundle) (Placement, error) {
	dir := s.FolderFor(formatted)
	p := Placement{Folder: dir}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		p.Created = true
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		p.Created = false
		return p, s.storageError(dir, err)
	}

	artifactName := model.SafeName(b.ArtifactName)
	files := []struct {
		name string
		data []byte
	}{
		{artifactName, b.Artifact},
		{artifactName + ".sig", b.Signature},
	}
	// Attachments never replace the artifact or its signature.
	used := map[string]int{artifactName: 1, artifactName + ".sig": 1}
	for _, a := range b.Attachments {
		files = append(files, struct {
			name string
			data []byte
		}{uniqueName(model.SafeName(a.Name), used), a.Data})
	}

	for _, f := range files {
		if f.data == nil {
			continue
		}
		path := filepath.Join(dir, f.name)
		if _, err := storage.WriteFileAtomic(path, bytes.NewReader(f.data), 0o640); err != nil {
			return p, s.storageError(path, err)
		}
		p.Files = append(p.Files, path)
	}
	s.log.Info().Str("folder", dir).Bool("created", p.Created).Int("files", len(p.Files)).Msg("artifact folder written")
	return p, nil
}

// Discard undoes a Placement: the folder goes only when this Write created
// it, otherwise just the files it wrote.
func (s *Store) Discard(p Placement) error {
	if p.Folder == "" {
		return nil
	}
	if p.Created {
		return s.Remove(p.Folder)
	}
	var errs []error
	for _, f := range p.Files {
		if filepath.Dir(f) != filepath.Clean(p.Folder) {
			errs = append(errs, fmt.Errorf("refusing to remove %s outside %s", f, p.Folder))
			continue
		}
		if err := os.Remove(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Remove deletes a folder. It only touches paths inside the root; a missing
// folder is not an error.
func (s *Store) Remove(folder string) error {
	if folder == "" {
		return nil
	}
	abs, err := filepath.Abs(folder)
	if err != nil {
		return err
	}
	root, err := filepath.Abs(s.root)
	if err != nil {
		return err
	}
	if abs == root || !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return fmt.Errorf("refusing to remove %s outside %s", folder, s.root)
	}
	if err := os.RemoveAll(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) storageError(path string, err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return apperr.Storage(
			"cannot write to the outgoing folder "+path,
			fmt.Sprintf("grant the service user write access: sudo chown -R $(id -u):$(id -g) %s && sudo chmod -R u+rwX %s", s.root, s.root),
			err,
		)
	}
	return apperr.Storage("cannot write to the outgoing folder "+path, "check free space and the OUTGOING_FILES_PATH setting", err)
}
