package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"outboxapi/internal/apperr"
	"outboxapi/internal/export"
	"outboxapi/internal/model"
	"outboxapi/internal/numbering"
	"outboxapi/internal/repository"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000

	numberTakenMsg = "number already taken, request a new number"
)

// JournalQuery filters and pages journal listings.
type JournalQuery struct {
	Year   int
	Month  int
	Limit  int
	Offset int
}

// JournalListResult is the service-level DTO for a journal page.
type JournalListResult struct {
	Items  []model.JournalEntry `json:"data"`
	Total  int                  `json:"total"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

// File is a downloadable payload.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// CreateEntryRequest registers a document by hand. Without a sequence number
// the next free one is allocated from the executor's rule.
type CreateEntryRequest struct {
	ExecutorID      string      `json:"executor_id"`
	SequenceNumber  *int        `json:"sequence_number,omitempty"`
	FormattedNumber string      `json:"formatted_number,omitempty"`
	IssueDate       *model.Date `json:"issue_date,omitempty"`
	Recipient       string      `json:"recipient"`
	Executor        string      `json:"executor"`
	ContentSummary  string      `json:"content_summary,omitempty"`
	SourceReference string      `json:"source_reference,omitempty"`
	FolderPath      string      `json:"folder_path,omitempty"`
}

// JournalService defines the use cases of the registration journal.
type JournalService interface {
	// List returns entries ordered by issue date descending and the filtered total.
	List(ctx context.Context, q JournalQuery) (*JournalListResult, error)

	// Get returns entry metadata.
	Get(ctx context.Context, id int64) (*model.JournalEntry, error)

	// Artifact returns one binary copy stored with an entry.
	Artifact(ctx context.Context, id int64, kind model.ArtifactKind) (*File, error)

	// Create registers a document manually.
	Create(ctx context.Context, req CreateEntryRequest) (*model.JournalEntry, error)

	// Update corrects metadata, re-checking number uniqueness.
	Update(ctx context.Context, id int64, patch model.JournalPatch) (*model.JournalEntry, error)

	// Delete removes the entry and then, best effort, its folder.
	Delete(ctx context.Context, id int64) error

	// Export renders the filtered journal as an XLSX workbook.
	Export(ctx context.Context, q JournalQuery) (*File, error)

	// NextNumber previews the number the executor would get now.
	NextNumber(ctx context.Context, executorID string) (model.Allocation, error)
}

type journalService struct {
	repo      repository.JournalRepository
	rules     RuleResolver
	alloc     NumberAllocator
	artifacts ArtifactStore
	metrics   *Metrics
	loc       *time.Location
	log       zerolog.Logger
}

// NewJournalService constructs a new JournalService.
func NewJournalService(repo repository.JournalRepository, rules RuleResolver, alloc NumberAllocator,
	artifacts ArtifactStore, metrics *Metrics, loc *time.Location, log zerolog.Logger) JournalService {
	if loc == nil {
		loc = time.UTC
	}
	return &journalService{
		repo:      repo,
		rules:     rules,
		alloc:     alloc,
		artifacts: artifacts,
		metrics:   metrics,
		loc:       loc,
		log:       log.With().Str("component", "journal").Logger(),
	}
}

// journalError translates repository sentinels into application errors.
func journalError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound("journal entry")
	case errors.Is(err, repository.ErrConflict):
		return apperr.Conflict(numberTakenMsg, err)
	}
	return err
}

func validateFilter(q JournalQuery) error {
	if q.Year < 0 || q.Year > 9999 {
		return apperr.Validation("INVALID_YEAR", "year must be a four digit year")
	}
	if q.Month < 0 || q.Month > 12 {
		return apperr.Validation("INVALID_MONTH", "month must be between 1 and 12")
	}
	return nil
}

func (s *journalService) List(ctx context.Context, q JournalQuery) (*JournalListResult, error) {
	if err := validateFilter(q); err != nil {
		return nil, err
	}
	if q.Limit <= 0 {
		q.Limit = defaultListLimit
	}
	if q.Limit > maxListLimit {
		q.Limit = maxListLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	res, err := s.repo.List(ctx, repository.JournalFilter{Year: q.Year, Month: q.Month},
		repository.PageQuery{Limit: q.Limit, Offset: q.Offset})
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	return &JournalListResult{Items: res.Items, Total: res.Total, Limit: q.Limit, Offset: q.Offset}, nil
}

func (s *journalService) Get(ctx context.Context, id int64) (*model.JournalEntry, error) {
	e, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, journalError(err)
	}
	return e, nil
}

func (s *journalService) Artifact(ctx context.Context, id int64, kind model.ArtifactKind) (*File, error) {
	switch kind {
	case model.ArtifactPDF, model.ArtifactSignature, model.ArtifactAttachments:
	default:
		return nil, apperr.Validation("INVALID_ARTIFACT_KIND", "kind must be pdf, sig or attachments")
	}

	e, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, journalError(err)
	}
	art, err := s.repo.FindArtifacts(ctx, id)
	if err != nil {
		return nil, journalError(err)
	}

	name := art.ArtifactName
	if name == "" {
		name = "исх_" + model.SafeName(e.FormattedNumber) + ".pdf"
	}
	var f File
	switch kind {
	case model.ArtifactPDF:
		f = File{Name: name, ContentType: "application/pdf", Data: art.SignedArtifact}
	case model.ArtifactSignature:
		f = File{Name: name + ".sig", ContentType: "application/pkcs7-signature", Data: art.SignatureBlob}
	case model.ArtifactAttachments:
		f = File{Name: "attachments_" + model.SafeName(e.FormattedNumber) + ".zip", ContentType: "application/zip", Data: art.AttachmentsArchive}
	}
	if len(f.Data) == 0 {
		return nil, apperr.NotFound(string(kind) + " artifact")
	}
	return &f, nil
}

func (s *journalService) Create(ctx context.Context, req CreateEntryRequest) (*model.JournalEntry, error) {
	req.Recipient = strings.TrimSpace(req.Recipient)
	req.Executor = strings.TrimSpace(req.Executor)
	if req.Recipient == "" {
		return nil, apperr.Validation("RECIPIENT_REQUIRED", "recipient is required")
	}
	if req.Executor == "" {
		return nil, apperr.Validation("EXECUTOR_REQUIRED", "executor is required")
	}

	rule := s.rules.Resolve(req.ExecutorID)
	date := model.NewDate(time.Now().In(s.loc))
	if req.IssueDate != nil {
		date = *req.IssueDate
	}
	scope := s.alloc.ScopeFor(rule, date)

	var seq int
	formatted := strings.TrimSpace(req.FormattedNumber)
	if req.SequenceNumber != nil {
		seq = *req.SequenceNumber
		if seq <= 0 {
			return nil, apperr.Validation("INVALID_SEQUENCE_NUMBER", "sequence_number must be positive")
		}
	} else {
		a, err := s.alloc.Next(ctx, rule)
		if err != nil {
			return nil, err
		}
		if a.Scope != scope {
			return nil, apperr.Validation("ISSUE_DATE_OUT_OF_SCOPE", "an automatically allocated number needs an issue date in the current numbering period")
		}
		seq = a.SequenceNumber
		if formatted == "" {
			formatted = a.FormattedNumber
		}
	}
	if formatted == "" {
		formatted = numbering.Format(rule, seq)
	}

	entry := &model.JournalEntry{
		SequenceNumber:  seq,
		FormattedNumber: formatted,
		IssueDate:       date,
		Recipient:       req.Recipient,
		Executor:        req.Executor,
		ExecutorCode:    rule.ExecutorCode,
		ContentSummary:  req.ContentSummary,
		SourceReference: req.SourceReference,
		FolderPath:      req.FolderPath,
		Scope:           scope,
	}

	var created *model.JournalEntry
	err := s.repo.WithinTx(ctx, func(tx repository.JournalRepository) error {
		taken, err := tx.NumberTaken(ctx, formatted, 0)
		if err != nil {
			return fmt.Errorf("check number: %w", err)
		}
		if taken {
			return apperr.Conflict(numberTakenMsg, nil)
		}
		created, err = tx.Create(ctx, entry)
		return err
	})
	if err != nil {
		err = journalError(err)
		if apperr.Is(err, apperr.KindConflict) {
			s.metrics.outcome(OutcomeConflict)
		}
		return nil, err
	}
	s.metrics.outcome(OutcomeManual)
	s.log.Info().Int64("id", created.ID).Str("number", created.FormattedNumber).Msg("journal entry created manually")
	return created, nil
}

func (s *journalService) Update(ctx context.Context, id int64, patch model.JournalPatch) (*model.JournalEntry, error) {
	if patch.Empty() {
		return nil, apperr.Validation("EMPTY_PATCH", "nothing to update")
	}
	if patch.SequenceNumber != nil && *patch.SequenceNumber <= 0 {
		return nil, apperr.Validation("INVALID_SEQUENCE_NUMBER", "sequence_number must be positive")
	}
	if patch.FormattedNumber != nil && strings.TrimSpace(*patch.FormattedNumber) == "" {
		return nil, apperr.Validation("INVALID_FORMATTED_NUMBER", "formatted_number must not be empty")
	}
	if patch.Recipient != nil && strings.TrimSpace(*patch.Recipient) == "" {
		return nil, apperr.Validation("RECIPIENT_REQUIRED", "recipient must not be empty")
	}

	var updated *model.JournalEntry
	err := s.repo.WithinTx(ctx, func(tx repository.JournalRepository) error {
		e, err := tx.FindByID(ctx, id)
		if err != nil {
			return err
		}

		if patch.FormattedNumber != nil {
			formatted := strings.TrimSpace(*patch.FormattedNumber)
			if formatted != e.FormattedNumber {
				taken, err := tx.NumberTaken(ctx, formatted, id)
				if err != nil {
					return fmt.Errorf("check number: %w", err)
				}
				if taken {
					return apperr.Conflict(numberTakenMsg, nil)
				}
			}
			e.FormattedNumber = formatted
		}
		if patch.SequenceNumber != nil {
			e.SequenceNumber = *patch.SequenceNumber
		}
		if patch.IssueDate != nil {
			e.IssueDate = *patch.IssueDate
			// Entries numbered per year move to the year of their new date.
			if e.Scope.Year != 0 {
				e.Scope.Year = e.IssueDate.Year()
			}
		}
		if patch.Recipient != nil {
			e.Recipient = strings.TrimSpace(*patch.Recipient)
		}
		if patch.Executor != nil {
			e.Executor = strings.TrimSpace(*patch.Executor)
		}
		if patch.FolderPath != nil {
			e.FolderPath = *patch.FolderPath
		}

		updated, err = tx.Update(ctx, e)
		return err
	})
	if err != nil {
		return nil, journalError(err)
	}
	s.log.Info().Int64("id", id).Str("number", updated.FormattedNumber).Msg("journal entry updated")
	return updated, nil
}

func (s *journalService) Delete(ctx context.Context, id int64) error {
	e, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return journalError(err)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return journalError(err)
	}

	// The row is authoritative; a folder that cannot be removed is only reported.
	if err := s.artifacts.Remove(e.FolderPath); err != nil {
		s.log.Warn().Err(err).Int64("id", id).Str("folder", e.FolderPath).Msg("journal entry deleted, folder left behind")
	}
	s.log.Info().Int64("id", id).Str("number", e.FormattedNumber).Msg("journal entry deleted")
	return nil
}

func (s *journalService) Export(ctx context.Context, q JournalQuery) (*File, error) {
	if err := validateFilter(q); err != nil {
		return nil, err
	}
	res, err := s.repo.List(ctx, repository.JournalFilter{Year: q.Year, Month: q.Month}, repository.PageQuery{})
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	data, err := export.Journal(res.Items)
	if err != nil {
		return nil, apperr.Internal("cannot build journal workbook", err)
	}
	return &File{Name: export.FileName(q.Year, q.Month), ContentType: export.ContentType, Data: data}, nil
}

func (s *journalService) NextNumber(ctx context.Context, executorID string) (model.Allocation, error) {
	return s.alloc.Next(ctx, s.rules.Resolve(executorID))
}
