package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"outboxapi/internal/apperr"
	"outboxapi/internal/artifact"
	"outboxapi/internal/board"
	"outboxapi/internal/docx"
	"outboxapi/internal/model"
	"outboxapi/internal/pending"
	"outboxapi/internal/repository"
)

const maxSummaryRunes = 500

// RegistrationOptions are the deployment settings of the pipeline.
type RegistrationOptions struct {
	// TemplatePrefix selects the template among card files, e.g. "исх_".
	TemplatePrefix string
	// SynthesizeTemplate uses a built-in template when a card has none.
	SynthesizeTemplate bool
	// ColumnOutboxID is where registered cards are moved. Zero leaves them in place.
	ColumnOutboxID     int64
	PropertyOutgoingNo string
	PropertyOutgoingDt string
	// PendingURL prefixes pending ids in PrepareResult.PDFURL.
	PendingURL string
}

// PrepareRequest starts a registration for a board card.
type PrepareRequest struct {
	CardID int64 `json:"card_id"`
	// FileName picks a card file explicitly instead of the prefix rule.
	FileName string `json:"file_name,omitempty"`
	// Certificate is shown in the stamp when the client signs remotely.
	Certificate *model.CertInfo `json:"certificate,omitempty"`
}

// PrepareResult is returned to the client, which signs the PDF at PDFURL.
type PrepareResult struct {
	PendingID       string     `json:"pending_id"`
	SequenceNumber  int        `json:"sequence_number"`
	FormattedNumber string     `json:"formatted_number"`
	IssueDate       model.Date `json:"issue_date"`
	Executor        string     `json:"executor"`
	Recipient       string     `json:"recipient"`
	SignMode        string     `json:"sign_mode"`
	PDFURL          string     `json:"pdf_url"`
	Signed          bool       `json:"signed"`
}

// CommitRequest finalizes a pending registration.
type CommitRequest struct {
	PendingID string `json:"pending_id"`
	// Signature is the base64 detached signature made by the client. Empty
	// when the server already signed during prepare.
	Signature  string          `json:"signature,omitempty"`
	Thumbprint string          `json:"thumbprint,omitempty"`
	CN         string          `json:"cn,omitempty"`
	Cert       *model.CertInfo `json:"cert,omitempty"`
	Recipient  string          `json:"recipient,omitempty"`
	MoveCard   bool            `json:"move_card"`
}

// CommitResult reports the journal entry and the card synchronisation outcome.
type CommitResult struct {
	Entry          *model.JournalEntry `json:"entry"`
	FolderPath     string              `json:"folder_path"`
	CardMoved      bool                `json:"card_moved"`
	BoardSyncError string              `json:"board_sync_error,omitempty"`
}

// RegistrationService runs the two-phase registration pipeline.
type RegistrationService interface {
	// Prepare allocates a number, fills the card's template, renders it to PDF
	// and keeps the result as a pending registration.
	Prepare(ctx context.Context, req PrepareRequest) (*PrepareResult, error)

	// PendingPDF returns the unsigned PDF of a pending registration.
	PendingPDF(ctx context.Context, id string) (*File, error)

	// Commit verifies the signature, writes the journal row and the numbered
	// folder, and moves the card on.
	Commit(ctx context.Context, req CommitRequest) (*CommitResult, error)
}

type registrationService struct {
	board     BoardClient
	rules     RuleResolver
	alloc     NumberAllocator
	filler    *docx.Transformer
	renderer  Renderer
	signer    Signer
	pending   PendingStore
	repo      repository.JournalRepository
	artifacts ArtifactStore
	metrics   *Metrics
	opts      RegistrationOptions
	log       zerolog.Logger
}

// RegistrationDeps groups the collaborators of the pipeline.
type RegistrationDeps struct {
	Board     BoardClient
	Rules     RuleResolver
	Allocator NumberAllocator
	Filler    *docx.Transformer
	Renderer  Renderer
	Signer    Signer
	Pending   PendingStore
	Journal   repository.JournalRepository
	Artifacts ArtifactStore
	Metrics   *Metrics
}

func NewRegistrationService(d RegistrationDeps, opts RegistrationOptions, log zerolog.Logger) RegistrationService {
	if opts.PendingURL == "" {
		opts.PendingURL = "/api/outbox/pending/"
	}
	return &registrationService{
		board:     d.Board,
		rules:     d.Rules,
		alloc:     d.Allocator,
		filler:    d.Filler,
		renderer:  d.Renderer,
		signer:    d.Signer,
		pending:   d.Pending,
		repo:      d.Journal,
		artifacts: d.Artifacts,
		metrics:   d.Metrics,
		opts:      opts,
		log:       log.With().Str("component", "registration").Logger(),
	}
}

func (s *registrationService) Prepare(ctx context.Context, req PrepareRequest) (*PrepareResult, error) {
	if req.CardID <= 0 {
		return nil, apperr.Validation("CARD_ID_REQUIRED", "card_id is required")
	}
	cardAttr := attribute.Int64("card.id", req.CardID)

	var (
		card     board.Card
		executor board.Member
	)
	err := s.metrics.stage(ctx, "card", func(ctx context.Context) error {
		var err error
		if card, err = s.board.Card(ctx, req.CardID); err != nil {
			return err
		}
		executor, err = s.board.Executor(ctx, req.CardID)
		return err
	}, cardAttr)
	if err != nil {
		return nil, err
	}
	recipient := strings.TrimSpace(card.Title)
	if recipient == "" {
		return nil, apperr.Validation("RECIPIENT_MISSING", "card has no title to use as the recipient")
	}

	executorID := strconv.FormatInt(executor.ID, 10)
	var alloc model.Allocation
	err = s.metrics.stage(ctx, "allocate", func(ctx context.Context) error {
		var err error
		alloc, err = s.alloc.Next(ctx, s.rules.Resolve(executorID))
		return err
	}, cardAttr)
	if err != nil {
		return nil, err
	}

	var (
		templateName string
		template     []byte
		attachments  []artifact.Attachment
	)
	err = s.metrics.stage(ctx, "template", func(ctx context.Context) error {
		var err error
		templateName, template, attachments, err = s.fetchTemplate(ctx, card, req.FileName)
		return err
	}, cardAttr)
	if err != nil {
		return nil, err
	}

	set, err := docx.Markers(template)
	if err != nil {
		return nil, err
	}
	if !set.Any() {
		return nil, apperr.Validation("TEMPLATE_NO_MARKERS", fmt.Sprintf(
			"template %s has none of the markers %s, %s, %s", templateName, docx.MarkerNumber, docx.MarkerDate, docx.MarkerStamp))
	}

	var stampCert *model.CertInfo
	if s.signer.Local() {
		c := s.signer.ConfiguredCert()
		stampCert = &c
	} else if req.Certificate != nil {
		stampCert = req.Certificate
	}

	var filled []byte
	err = s.metrics.stage(ctx, "substitute", func(context.Context) error {
		var err error
		filled, err = s.filler.Substitute(template, docx.Values{
			Number: alloc.FormattedNumber,
			Date:   alloc.IssueDate,
			Cert:   stampCert,
			Signer: executor.DisplayName(),
		})
		return err
	}, cardAttr)
	if err != nil {
		return nil, err
	}

	var pdf []byte
	err = s.metrics.stage(ctx, "convert", func(ctx context.Context) error {
		var err error
		pdf, err = s.renderer.ToPDF(ctx, filled)
		return err
	}, cardAttr)
	if err != nil {
		return nil, err
	}

	reg := &model.PendingRegistration{
		ID:              pending.NewID(),
		CardID:          card.ID,
		SourceReference: "kaiten:" + strconv.FormatInt(card.ID, 10),
		ExecutorID:      executorID,
		Executor:        executor.DisplayName(),
		Recipient:       recipient,
		ContentSummary:  summary(card.Description),
		TemplateName:    templateName,
		Allocation:      alloc,
		SignMode:        s.signer.Mode(),
		Cert:            req.Certificate,
		CreatedAt:       time.Now().UTC(),
	}
	files := pending.Files{Draft: filled, PDF: pdf}

	if s.signer.Local() {
		err = s.metrics.stage(ctx, "sign", func(ctx context.Context) error {
			sig, err := s.signer.SignLocal(ctx, pdf)
			if err != nil {
				return err
			}
			files.Signature = sig.Data
			reg.Signed = true
			reg.Cert = &sig.Cert
			return nil
		}, cardAttr)
		if err != nil {
			return nil, err
		}
	}

	for _, a := range attachments {
		reg.Attachments = append(reg.Attachments, a.Name)
	}
	if files.Attachments, err = artifact.Archive(attachments); err != nil {
		return nil, apperr.Internal("cannot pack card attachments", err)
	}

	err = s.metrics.stage(ctx, "pending", func(ctx context.Context) error {
		return s.pending.Save(ctx, reg, files)
	}, cardAttr)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("pending_id", reg.ID).
		Int64("card_id", card.ID).
		Str("number", alloc.FormattedNumber).
		Bool("signed", reg.Signed).
		Msg("registration prepared")

	return &PrepareResult{
		PendingID:       reg.ID,
		SequenceNumber:  alloc.SequenceNumber,
		FormattedNumber: alloc.FormattedNumber,
		IssueDate:       alloc.IssueDate,
		Executor:        reg.Executor,
		Recipient:       recipient,
		SignMode:        reg.SignMode,
		PDFURL:          s.opts.PendingURL + reg.ID + "/pdf",
		Signed:          reg.Signed,
	}, nil
}

// fetchTemplate picks and downloads the template. Every other card file is
// returned as an attachment.
func (s *registrationService) fetchTemplate(ctx context.Context, card board.Card, fileName string) (string, []byte, []artifact.Attachment, error) {
	tmpl, rest, err := s.selectTemplate(card, fileName)
	if err != nil {
		return "", nil, nil, err
	}

	var (
		name string
		data []byte
	)
	if tmpl == nil {
		name = "sample.docx"
		data = docx.SampleTemplate()
		s.log.Warn().Int64("card_id", card.ID).Msg("card has no template, using the built-in sample")
	} else {
		name = tmpl.Name
		if data, err = s.board.Download(ctx, tmpl.URL); err != nil {
			return "", nil, nil, err
		}
	}

	atts := make([]artifact.Attachment, 0, len(rest))
	for _, f := range rest {
		b, err := s.board.Download(ctx, f.URL)
		if err != nil {
			return "", nil, nil, fmt.Errorf("download attachment %s: %w", f.Name, err)
		}
		atts = append(atts, artifact.Attachment{Name: f.Name, Data: b})
	}
	return name, data, atts, nil
}

// selectTemplate returns a nil template only when synthesis is enabled.
func (s *registrationService) selectTemplate(card board.Card, fileName string) (*board.File, []board.File, error) {
	idx := -1
	if fileName != "" {
		for i, f := range card.Files {
			if f.Name == fileName {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, nil, apperr.NotFound("card file " + fileName)
		}
		if !isDocx(card.Files[idx].Name) {
			return nil, nil, apperr.Validation("TEMPLATE_NOT_DOCX",
				fmt.Sprintf("%s is not a DOCX document; only DOCX templates with %s, %s or %s can be registered",
					fileName, docx.MarkerNumber, docx.MarkerDate, docx.MarkerStamp))
		}
	} else {
		prefix := strings.ToLower(s.opts.TemplatePrefix)
		for i, f := range card.Files {
			if strings.HasPrefix(strings.ToLower(f.Name), prefix) && isDocx(f.Name) {
				idx = i
				break
			}
		}
	}

	rest := make([]board.File, 0, len(card.Files))
	for i, f := range card.Files {
		if i != idx {
			rest = append(rest, f)
		}
	}
	if idx >= 0 {
		tmpl := card.Files[idx]
		return &tmpl, rest, nil
	}
	if s.opts.SynthesizeTemplate {
		return nil, rest, nil
	}
	return nil, nil, apperr.Validation("TEMPLATE_NOT_FOUND",
		fmt.Sprintf("card %d has no %s*.docx template", card.ID, s.opts.TemplatePrefix))
}

func isDocx(name string) bool {
	return strings.EqualFold(path.Ext(name), ".docx")
}

func summary(desc string) string {
	desc = strings.TrimSpace(desc)
	if utf8.RuneCountInString(desc) <= maxSummaryRunes {
		return desc
	}
	return string([]rune(desc)[:maxSummaryRunes])
}

func (s *registrationService) PendingPDF(ctx context.Context, id string) (*File, error) {
	reg, err := s.pending.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	pdf, err := s.pending.ReadFile(ctx, id, pending.FilePDF)
	if err != nil {
		return nil, err
	}
	return &File{Name: reg.ArtifactName(), ContentType: "application/pdf", Data: pdf}, nil
}

func (s *registrationService) Commit(ctx context.Context, req CommitRequest) (*CommitResult, error) {
	if strings.TrimSpace(req.PendingID) == "" {
		return nil, apperr.Validation("PENDING_ID_REQUIRED", "pending_id is required")
	}
	reg, err := s.pending.Load(ctx, req.PendingID)
	if err != nil {
		return nil, err
	}
	pdf, err := s.pending.ReadFile(ctx, reg.ID, pending.FilePDF)
	if err != nil {
		return nil, err
	}
	pendingAttr := attribute.String("pending.id", reg.ID)

	var sig model.Signature
	err = s.metrics.stage(ctx, "verify", func(ctx context.Context) error {
		sig, err = s.signature(ctx, reg, pdf, req)
		return err
	}, pendingAttr)
	if err != nil {
		return nil, err
	}

	archive, err := s.pending.ReadFile(ctx, reg.ID, pending.FileAttachments)
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}
	attachments, err := artifact.Unarchive(archive)
	if err != nil {
		return nil, apperr.Internal("pending attachments are corrupt", err)
	}

	recipient := reg.Recipient
	if r := strings.TrimSpace(req.Recipient); r != "" {
		recipient = r
	}
	alloc := reg.Allocation
	entry := &model.JournalEntry{
		SequenceNumber:  alloc.SequenceNumber,
		FormattedNumber: alloc.FormattedNumber,
		IssueDate:       alloc.IssueDate,
		Recipient:       recipient,
		Executor:        reg.Executor,
		ExecutorCode:    alloc.ExecutorCode,
		ContentSummary:  reg.ContentSummary,
		SourceReference: reg.SourceReference,
		FolderPath:      s.artifacts.FolderFor(alloc.FormattedNumber),
		Scope:           alloc.Scope,
		Artifacts: &model.JournalArtifacts{
			ArtifactName:       reg.ArtifactName(),
			SignedArtifact:     pdf,
			SignatureBlob:      sig.Data,
			AttachmentsArchive: archive,
		},
	}

	var (
		created *model.JournalEntry
		placed  artifact.Placement
	)
	err = s.metrics.stage(ctx, "journal", func(ctx context.Context) error {
		return s.repo.WithinTx(ctx, func(tx repository.JournalRepository) error {
			var err error
			if created, err = tx.Create(ctx, entry); err != nil {
				return err
			}
			placed, err = s.artifacts.Write(ctx, alloc.FormattedNumber, artifact.Bundle{
				ArtifactName: reg.ArtifactName(),
				Artifact:     pdf,
				Signature:    sig.Data,
				Attachments:  attachments,
			})
			return err
		})
	}, pendingAttr, attribute.String("number", alloc.FormattedNumber))
	if err != nil {
		if rmErr := s.artifacts.Discard(placed); rmErr != nil {
			s.log.Error().Err(rmErr).Str("folder", placed.Folder).Msg("cannot clean up files of failed registration")
		}
		if errors.Is(err, repository.ErrConflict) {
			s.metrics.outcome(OutcomeConflict)
			s.log.Warn().Str("pending_id", reg.ID).Str("number", alloc.FormattedNumber).Msg("number taken at commit")
			return nil, apperr.Conflict(numberTakenMsg, err)
		}
		s.metrics.outcome(OutcomeFailed)
		return nil, journalError(err)
	}
	s.metrics.outcome(OutcomeRegistered)

	if err := s.pending.Delete(ctx, reg.ID); err != nil {
		s.log.Warn().Err(err).Str("pending_id", reg.ID).Msg("registered, pending files left for the sweeper")
	}

	res := &CommitResult{Entry: created, FolderPath: placed.Folder}
	if req.MoveCard && reg.CardID != 0 {
		if err := s.moveCard(ctx, reg.CardID, created); err != nil {
			s.log.Warn().Err(err).Int64("card_id", reg.CardID).Msg("registered, card not moved")
			res.BoardSyncError = err.Error()
		} else {
			res.CardMoved = true
		}
	}

	s.log.Info().
		Int64("id", created.ID).
		Str("number", created.FormattedNumber).
		Str("folder", placed.Folder).
		Bool("card_moved", res.CardMoved).
		Msg("registration committed")
	return res, nil
}

// signature returns the remote signature from the request or the one made
// during prepare.
func (s *registrationService) signature(ctx context.Context, reg *model.PendingRegistration, pdf []byte, req CommitRequest) (model.Signature, error) {
	if strings.TrimSpace(req.Signature) != "" {
		var hint model.CertInfo
		if req.Cert != nil {
			hint = *req.Cert
		} else if reg.Cert != nil {
			hint = *reg.Cert
		}
		if req.Thumbprint != "" {
			hint.Thumbprint = req.Thumbprint
		}
		if req.CN != "" && hint.Owner == "" {
			hint.Owner = req.CN
		}
		return s.signer.AcceptRemote(ctx, pdf, req.Signature, hint)
	}

	if !reg.Signed {
		return model.Signature{}, apperr.Validation("SIGNATURE_REQUIRED", "signature is required for a remotely signed registration")
	}
	data, err := s.pending.ReadFile(ctx, reg.ID, pending.FileSignature)
	if err != nil {
		return model.Signature{}, err
	}
	sig := model.Signature{Data: data}
	if reg.Cert != nil {
		sig.Cert = *reg.Cert
	}
	return sig, nil
}

func (s *registrationService) moveCard(ctx context.Context, cardID int64, e *model.JournalEntry) error {
	props := make(map[string]any, 2)
	if s.opts.PropertyOutgoingNo != "" {
		props[s.opts.PropertyOutgoingNo] = e.FormattedNumber
	}
	if s.opts.PropertyOutgoingDt != "" {
		props[s.opts.PropertyOutgoingDt] = map[string]string{"date": e.IssueDate.String()}
	}
	return s.board.MoveCard(ctx, cardID, board.Move{
		ColumnID:   s.opts.ColumnOutboxID,
		Properties: props,
		Comment:    fmt.Sprintf("Зарегистрирован исх. № %s от %s", e.FormattedNumber, e.IssueDate.Display()),
	})
}
