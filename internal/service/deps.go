package service

import (
	"context"

	"outboxapi/internal/artifact"
	"outboxapi/internal/board"
	"outboxapi/internal/model"
	"outboxapi/internal/pending"
)

// RuleResolver maps an executor to its numbering rule.
type RuleResolver interface {
	Resolve(executorID string) model.NumberingRule
}

// NumberAllocator proposes sequence numbers.
type NumberAllocator interface {
	Next(ctx context.Context, rule model.NumberingRule) (model.Allocation, error)
	ScopeFor(rule model.NumberingRule, date model.Date) model.Scope
}

// ArtifactStore writes and removes numbered folders.
type ArtifactStore interface {
	FolderFor(formatted string) string
	Write(ctx context.Context, formatted string, b artifact.Bundle) (artifact.Placement, error)
	Discard(p artifact.Placement) error
	Remove(folder string) error
}

// PendingStore keeps prepared registrations between prepare and commit.
type PendingStore interface {
	Save(ctx context.Context, reg *model.PendingRegistration, files pending.Files) error
	Load(ctx context.Context, id string) (*model.PendingRegistration, error)
	ReadFile(ctx context.Context, id, name string) ([]byte, error)
	Delete(ctx context.Context, id string) error
}

// BoardClient is the part of the board API the pipeline needs.
type BoardClient interface {
	Card(ctx context.Context, id int64) (board.Card, error)
	Executor(ctx context.Context, id int64) (board.Member, error)
	Download(ctx context.Context, fileURL string) ([]byte, error)
	MoveCard(ctx context.Context, id int64, m board.Move) error
}

// Renderer converts a filled DOCX into PDF.
type Renderer interface {
	ToPDF(ctx context.Context, docx []byte) ([]byte, error)
}

// Signer produces or accepts detached signatures.
type Signer interface {
	Mode() string
	Local() bool
	ConfiguredCert() model.CertInfo
	SignLocal(ctx context.Context, artifact []byte) (model.Signature, error)
	AcceptRemote(ctx context.Context, artifact []byte, payload string, hint model.CertInfo) (model.Signature, error)
}
