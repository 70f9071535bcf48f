// Package pending keeps prepared registrations between the prepare and commit
// steps. Nothing in here consumes a document number.
package pending

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"outboxapi/internal/apperr"
	"outboxapi/internal/model"
	"outboxapi/internal/storage"
)

const (
	keyPrefix = "pending/"
	metaFile  = "meta.json"

	FileDraft       = "draft.docx"
	FilePDF         = "document.pdf"
	FileSignature   = "document.pdf.sig"
	FileAttachments = "attachments.zip"
)

var contentTypes = map[string]string{
	FileDraft:       "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	FilePDF:         "application/pdf",
	FileSignature:   "application/pkcs7-signature",
	FileAttachments: "application/zip",
}

// Files are the binary parts of a pending registration. Nil parts are not stored.
type Files struct {
	Draft       []byte
	PDF         []byte
	Signature   []byte
	Attachments []byte
}

// Store persists pending registrations in object storage.
type Store struct {
	st storage.Storage
}

func NewStore(st storage.Storage) *Store {
	return &Store{st: st}
}

// NewID returns a fresh pending registration id.
func NewID() string { return uuid.NewString() }

func key(id, name string) string { return keyPrefix + id + "/" + name }

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Save writes the files first and the metadata last, so a registration is only
// visible to Load once all of its parts exist.
func (s *Store) Save(ctx context.Context, reg *model.PendingRegistration, files Files) error {
	if !validID(reg.ID) {
		return apperr.Internal("pending registration has no valid id", nil)
	}
	parts := []struct {
		name string
		data []byte
	}{
		{FileDraft, files.Draft},
		{FilePDF, files.PDF},
		{FileSignature, files.Signature},
		{FileAttachments, files.Attachments},
	}
	for _, p := range parts {
		if p.data == nil {
			continue
		}
		if err := s.put(ctx, reg.ID, p.name, p.data); err != nil {
			return err
		}
	}

	meta, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("marshal pending registration: %w", err)
	}
	return s.put(ctx, reg.ID, metaFile, meta)
}

func (s *Store) put(ctx context.Context, id, name string, data []byte) error {
	ct := contentTypes[name]
	if ct == "" {
		ct = "application/json"
	}
	_, err := s.st.Put(ctx, key(id, name), bytes.NewReader(data), storage.PutObjectOptions{
		Size:        int64(len(data)),
		ContentType: ct,
	})
	if err != nil {
		return apperr.Storage("cannot save pending registration", "check the pending storage backend (PENDING_BACKEND)", fmt.Errorf("put %s: %w", name, err))
	}
	return nil
}

// Load returns the metadata of a pending registration.
func (s *Store) Load(ctx context.Context, id string) (*model.PendingRegistration, error) {
	raw, err := s.ReadFile(ctx, id, metaFile)
	if err != nil {
		return nil, err
	}
	var reg model.PendingRegistration
	if err := json.Unmarshal(raw, &reg); err != nil {
		return nil, apperr.Internal("pending registration metadata is corrupt", err)
	}
	return &reg, nil
}

// ReadFile returns one stored part. A missing part is NotFound.
func (s *Store) ReadFile(ctx context.Context, id, name string) ([]byte, error) {
	if !validID(id) {
		return nil, apperr.NotFound("pending registration")
	}
	rc, _, err := s.st.Get(ctx, key(id, name))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			if name == metaFile {
				return nil, apperr.NotFound("pending registration")
			}
			return nil, apperr.NotFound("pending " + name)
		}
		return nil, apperr.Storage("cannot read pending registration", "check the pending storage backend (PENDING_BACKEND)", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, apperr.Storage("cannot read pending registration", "", err)
	}
	return data, nil
}

// Delete removes a pending registration with all its parts.
func (s *Store) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return nil
	}
	if err := s.st.DeletePrefix(ctx, keyPrefix+id+"/"); err != nil {
		return fmt.Errorf("delete pending %s: %w", id, err)
	}
	return nil
}

// LastTouched maps every stored id, with or without readable metadata, to the
// newest modification time among its parts.
func (s *Store) LastTouched(ctx context.Context) (map[string]time.Time, error) {
	objs, err := s.st.List(ctx, keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	out := make(map[string]time.Time)
	for _, o := range objs {
		id, _, ok := strings.Cut(strings.TrimPrefix(o.Key, keyPrefix), "/")
		if !ok || id == "" {
			continue
		}
		if o.LastModified.After(out[id]) {
			out[id] = o.LastModified
		}
	}
	return out, nil
}
