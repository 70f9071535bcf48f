package service

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"outboxapi/internal/apperr"
	"outboxapi/internal/artifact"
	"outboxapi/internal/board"
	boardMocks "outboxapi/internal/board/mocks"
	"outboxapi/internal/config"
	"outboxapi/internal/docx"
	"outboxapi/internal/model"
	"outboxapi/internal/numbering"
	"outboxapi/internal/pending"
	"outboxapi/internal/repository"
	repoMocks "outboxapi/internal/repository/mocks"
	"outboxapi/internal/signing"
	"outboxapi/internal/storage"
	"outboxapi/internal/subprocess"
)

const testCardID = int64(500)

type fakeRenderer struct {
	got []byte
	err error
}

func (r *fakeRenderer) ToPDF(_ context.Context, doc []byte) ([]byte, error) {
	r.got = doc
	if r.err != nil {
		return nil, r.err
	}
	return []byte("%PDF-1.7 rendered"), nil
}

type signRunner struct{}

func (signRunner) Run(context.Context, subprocess.Job) (subprocess.Result, error) {
	return subprocess.Result{Output: []byte("SIG")}, nil
}

type pipeline struct {
	svc      RegistrationService
	board    *boardMocks.MockClient
	repo     *repoMocks.MockJournalRepository
	renderer *fakeRenderer
	pending  *pending.Store
	outgoing string
	metrics  *Metrics
}

func newPipeline(t *testing.T, signMode string, mutate func(*RegistrationOptions)) *pipeline {
	t.Helper()
	st, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	verifier, err := signing.NewVerifier(signing.VerifyNone, nil, "", 0, zerolog.Nop())
	require.NoError(t, err)
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	p := &pipeline{
		board:    new(boardMocks.MockClient),
		repo:     new(repoMocks.MockJournalRepository),
		renderer: &fakeRenderer{},
		pending:  pending.NewStore(st),
		outgoing: t.TempDir(),
		metrics:  m,
	}
	opts := RegistrationOptions{
		TemplatePrefix:     "исх_",
		ColumnOutboxID:     77,
		PropertyOutgoingNo: "101",
		PropertyOutgoingDt: "102",
	}
	if mutate != nil {
		mutate(&opts)
	}
	signer := signing.NewCoordinator(config.SigningConfig{
		Mode:       signMode,
		Binary:     "cryptcp",
		CertSerial: "01AB",
		CertOwner:  "Сидоров С.С.",
	}, signRunner{}, verifier, zerolog.Nop())

	p.svc = NewRegistrationService(RegistrationDeps{
		Board:     p.board,
		Rules:     testRules,
		Allocator: numbering.NewAllocator(p.repo, numbering.ScopeGlobal, time.UTC),
		Filler:    docx.NewTransformer("", zerolog.Nop()),
		Renderer:  p.renderer,
		Signer:    signer,
		Pending:   p.pending,
		Journal:   p.repo,
		Artifacts: artifact.NewStore(p.outgoing, zerolog.Nop()),
		Metrics:   m,
	}, opts, zerolog.Nop())
	return p
}

func testCard() board.Card {
	return board.Card{
		ID:          testCardID,
		Title:       "ООО Ромашка",
		Description: "О поставке оборудования",
		Files: []board.File{
			{ID: 1, Name: "scan.pdf", URL: "/files/scan.pdf"},
			{ID: 2, Name: "исх_письмо.docx", URL: "/files/template.docx"},
		},
	}
}

// expectCard sets up a card whose executor falls under the default rule and
// whose last committed number is 41.
func (p *pipeline) expectCard(card board.Card, template []byte) {
	p.board.On("Card", mock.Anything, testCardID).Return(card, nil)
	p.board.On("Executor", mock.Anything, testCardID).Return(board.Member{ID: 3, FullName: "Иванов И.И.", Type: 2}, nil)
	p.board.On("Download", mock.Anything, "/files/template.docx").Return(template, nil).Maybe()
	p.board.On("Download", mock.Anything, "/files/scan.pdf").Return([]byte("scan"), nil).Maybe()
	p.repo.On("MaxSequence", mock.Anything, model.Scope{}).Return(41, nil)
}

func (p *pipeline) prepare(t *testing.T) string {
	t.Helper()
	p.expectCard(testCard(), docx.SampleTemplate())
	res, err := p.svc.Prepare(context.Background(), PrepareRequest{CardID: testCardID})
	require.NoError(t, err)
	return res.PendingID
}

func plainDocx(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">` +
		`<w:body><w:p><w:r><w:t>Уважаемые коллеги</w:t></w:r></w:p></w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestRegistrationService_PrepareRemote(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, signing.ModeRemote, nil)
	p.expectCard(testCard(), docx.SampleTemplate())

	res, err := p.svc.Prepare(ctx, PrepareRequest{CardID: testCardID})
	require.NoError(t, err)

	assert.Equal(t, 42, res.SequenceNumber)
	assert.Equal(t, "42-01", res.FormattedNumber)
	assert.Equal(t, "Иванов И.И.", res.Executor)
	assert.Equal(t, "ООО Ромашка", res.Recipient)
	assert.Equal(t, signing.ModeRemote, res.SignMode)
	assert.False(t, res.Signed)
	assert.Equal(t, "/api/outbox/pending/"+res.PendingID+"/pdf", res.PDFURL)

	set, err := docx.Markers(p.renderer.got)
	require.NoError(t, err)
	assert.False(t, set.Any(), "rendered document still has markers")

	reg, err := p.pending.Load(ctx, res.PendingID)
	require.NoError(t, err)
	assert.Equal(t, "исх_письмо.docx", reg.TemplateName)
	assert.Equal(t, []string{"scan.pdf"}, reg.Attachments)
	assert.Equal(t, "О поставке оборудования", reg.ContentSummary)
	assert.Equal(t, "3", reg.ExecutorID)

	_, err = p.pending.ReadFile(ctx, res.PendingID, pending.FileSignature)
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "remote mode stores no signature")

	pdf, err := p.svc.PendingPDF(ctx, res.PendingID)
	require.NoError(t, err)
	assert.Equal(t, "исх_42-01.pdf", pdf.Name)
	assert.Equal(t, []byte("%PDF-1.7 rendered"), pdf.Data)
}

func TestRegistrationService_PrepareLocalSigns(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, signing.ModeLocal, nil)
	p.expectCard(testCard(), docx.SampleTemplate())

	res, err := p.svc.Prepare(ctx, PrepareRequest{CardID: testCardID})
	require.NoError(t, err)
	assert.True(t, res.Signed)
	assert.Equal(t, signing.ModeLocal, res.SignMode)

	sig, err := p.pending.ReadFile(ctx, res.PendingID, pending.FileSignature)
	require.NoError(t, err)
	assert.Equal(t, []byte("SIG"), sig)

	reg, err := p.pending.Load(ctx, res.PendingID)
	require.NoError(t, err)
	require.NotNil(t, reg.Cert)
	assert.Equal(t, "Сидоров С.С.", reg.Cert.Owner)
}

func TestRegistrationService_PrepareErrors(t *testing.T) {
	ctx := context.Background()
	noTemplate := testCard()
	noTemplate.Files = noTemplate.Files[:1]

	tests := []struct {
		name       string
		card       board.Card
		template   func(t *testing.T) []byte
		fileName   string
		synthesize bool
		wantKind   apperr.Kind
		wantCode   string
	}{
		{
			name:     "named file is not a docx",
			card:     testCard(),
			fileName: "scan.pdf",
			wantKind: apperr.KindValidation,
			wantCode: "TEMPLATE_NOT_DOCX",
		},
		{
			name:     "named file missing",
			card:     testCard(),
			fileName: "другое.docx",
			wantKind: apperr.KindNotFound,
			wantCode: "NOT_FOUND",
		},
		{
			name:     "card without template",
			card:     noTemplate,
			wantKind: apperr.KindValidation,
			wantCode: "TEMPLATE_NOT_FOUND",
		},
		{
			name:     "template without markers",
			card:     testCard(),
			template: plainDocx,
			wantKind: apperr.KindValidation,
			wantCode: "TEMPLATE_NO_MARKERS",
		},
		{
			name:     "template is not a docx archive",
			card:     testCard(),
			template: func(*testing.T) []byte { return []byte("plain text") },
			wantKind: apperr.KindTemplate,
			wantCode: "TEMPLATE_INVALID",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPipeline(t, signing.ModeRemote, func(o *RegistrationOptions) { o.SynthesizeTemplate = tt.synthesize })
			tmpl := docx.SampleTemplate()
			if tt.template != nil {
				tmpl = tt.template(t)
			}
			p.expectCard(tt.card, tmpl)

			_, err := p.svc.Prepare(ctx, PrepareRequest{CardID: testCardID, FileName: tt.fileName})
			ae, ok := apperr.As(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, tt.wantKind, ae.Kind)
			assert.Equal(t, tt.wantCode, ae.Code)
			assert.Nil(t, p.renderer.got, "renderer must not run")
		})
	}
}

func TestRegistrationService_PrepareSynthesizesTemplate(t *testing.T) {
	p := newPipeline(t, signing.ModeRemote, func(o *RegistrationOptions) { o.SynthesizeTemplate = true })
	card := testCard()
	card.Files = nil
	p.expectCard(card, nil)

	res, err := p.svc.Prepare(context.Background(), PrepareRequest{CardID: testCardID})
	require.NoError(t, err)
	assert.Equal(t, "42-01", res.FormattedNumber)
	p.board.AssertNotCalled(t, "Download", mock.Anything, mock.Anything)
}

func TestRegistrationService_PrepareMissingExecutor(t *testing.T) {
	p := newPipeline(t, signing.ModeRemote, nil)
	p.board.On("Card", mock.Anything, testCardID).Return(testCard(), nil)
	p.board.On("Executor", mock.Anything, testCardID).Return(board.Member{}, apperr.NotFound("executor of card 500"))

	_, err := p.svc.Prepare(context.Background(), PrepareRequest{CardID: testCardID})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	p.repo.AssertNotCalled(t, "MaxSequence", mock.Anything, mock.Anything)
}

func TestRegistrationService_CommitLocal(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, signing.ModeLocal, nil)
	id := p.prepare(t)

	p.repo.On("WithinTx", mock.Anything, mock.Anything).Return(nil)
	p.repo.On("Create", mock.Anything, mock.MatchedBy(func(e *model.JournalEntry) bool {
		return e.FormattedNumber == "42-01" &&
			e.Recipient == "ООО Ромашка" &&
			e.FolderPath == filepath.Join(p.outgoing, "42-01") &&
			bytes.Equal(e.Artifacts.SignatureBlob, []byte("SIG")) &&
			len(e.Artifacts.AttachmentsArchive) > 0
	})).Return(func() *model.JournalEntry {
		return &model.JournalEntry{ID: 1, FormattedNumber: "42-01", IssueDate: model.NewDate(time.Now().UTC())}
	}(), nil)
	p.board.On("MoveCard", mock.Anything, testCardID, mock.MatchedBy(func(m board.Move) bool {
		return m.ColumnID == 77 &&
			m.Properties["101"] == "42-01" &&
			strings.HasPrefix(m.Comment, "Зарегистрирован исх. № 42-01 от ")
	})).Return(nil)

	res, err := p.svc.Commit(ctx, CommitRequest{PendingID: id, MoveCard: true})
	require.NoError(t, err)
	assert.True(t, res.CardMoved)
	assert.Empty(t, res.BoardSyncError)

	folder := filepath.Join(p.outgoing, "42-01")
	assert.Equal(t, folder, res.FolderPath)
	for _, name := range []string{"исх_42-01.pdf", "исх_42-01.pdf.sig", "scan.pdf"} {
		assert.FileExists(t, filepath.Join(folder, name))
	}

	_, err = p.pending.Load(ctx, id)
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "pending registration must be consumed")
	assert.Equal(t, float64(1), testutil.ToFloat64(p.metrics.registrations.WithLabelValues(OutcomeRegistered)))
	p.board.AssertExpectations(t)
}

func TestRegistrationService_CommitConflict(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, signing.ModeLocal, nil)
	id := p.prepare(t)

	p.repo.On("WithinTx", mock.Anything, mock.Anything).Return(nil)
	p.repo.On("Create", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: outbox_journal_formatted_number_key", repository.ErrConflict))

	_, err := p.svc.Commit(ctx, CommitRequest{PendingID: id, MoveCard: true})
	ae, ok := apperr.As(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, apperr.KindConflict, ae.Kind)
	assert.Equal(t, "NUMBER_TAKEN", ae.Code)

	assert.NoDirExists(t, filepath.Join(p.outgoing, "42-01"))
	_, err = p.pending.Load(ctx, id)
	assert.NoError(t, err, "pending registration is kept after a conflict")
	assert.Equal(t, float64(1), testutil.ToFloat64(p.metrics.registrations.WithLabelValues(OutcomeConflict)))
	p.board.AssertNotCalled(t, "MoveCard", mock.Anything, mock.Anything, mock.Anything)
}

func TestRegistrationService_CommitRemote(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		signature string
		wantCode  string
	}{
		{name: "signature required", wantCode: "SIGNATURE_REQUIRED"},
		{name: "malformed signature", signature: "@@not base64@@", wantCode: "SIGNATURE_MALFORMED"},
		{name: "accepted", signature: base64.StdEncoding.EncodeToString([]byte("remote-sig"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPipeline(t, signing.ModeRemote, nil)
			id := p.prepare(t)
			p.repo.On("WithinTx", mock.Anything, mock.Anything).Return(nil).Maybe()
			p.repo.On("Create", mock.Anything, mock.MatchedBy(func(e *model.JournalEntry) bool {
				return bytes.Equal(e.Artifacts.SignatureBlob, []byte("remote-sig"))
			})).Return(&model.JournalEntry{ID: 2, FormattedNumber: "42-01"}, nil).Maybe()

			res, err := p.svc.Commit(ctx, CommitRequest{PendingID: id, Signature: tt.signature, CN: "Петров П.П."})
			if tt.wantCode != "" {
				ae, ok := apperr.As(err)
				require.True(t, ok, "got %v", err)
				assert.Equal(t, tt.wantCode, ae.Code)
				p.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(2), res.Entry.ID)
			assert.False(t, res.CardMoved)
			p.board.AssertNotCalled(t, "MoveCard", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestRegistrationService_CommitBoardSyncFailure(t *testing.T) {
	p := newPipeline(t, signing.ModeLocal, nil)
	id := p.prepare(t)
	p.repo.On("WithinTx", mock.Anything, mock.Anything).Return(nil)
	p.repo.On("Create", mock.Anything, mock.Anything).Return(&model.JournalEntry{ID: 3, FormattedNumber: "42-01"}, nil)
	p.board.On("MoveCard", mock.Anything, testCardID, mock.Anything).
		Return(apperr.External("board", "board request PATCH /cards/500 failed", "status 503: ", nil))

	res, err := p.svc.Commit(context.Background(), CommitRequest{PendingID: id, MoveCard: true})
	require.NoError(t, err)
	assert.False(t, res.CardMoved)
	assert.Contains(t, res.BoardSyncError, "board request")
	assert.DirExists(t, res.FolderPath)
}

func TestRegistrationService_CommitFolderFailure(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, signing.ModeLocal, nil)
	id := p.prepare(t)

	// A regular file where the outgoing root should be makes every folder write fail.
	blocker := filepath.Join(t.TempDir(), "outgoing")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o640))
	impl := p.svc.(*registrationService)
	impl.artifacts = artifact.NewStore(blocker, zerolog.Nop())

	p.repo.On("WithinTx", mock.Anything, mock.Anything).Return(nil)
	p.repo.On("Create", mock.Anything, mock.Anything).Return(&model.JournalEntry{ID: 4, FormattedNumber: "42-01"}, nil)

	_, err := p.svc.Commit(ctx, CommitRequest{PendingID: id})
	assert.True(t, apperr.Is(err, apperr.KindStorage), "got %v", err)
	assert.Equal(t, float64(1), testutil.ToFloat64(p.metrics.registrations.WithLabelValues(OutcomeFailed)))

	_, err = p.pending.Load(ctx, id)
	assert.NoError(t, err)
}

func TestRegistrationService_CommitFailureKeepsExistingFolder(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, signing.ModeLocal, nil)
	id := p.prepare(t)

	folder := filepath.Join(p.outgoing, "42-01")
	require.NoError(t, os.MkdirAll(folder, 0o750))
	keep := filepath.Join(folder, "keep.txt")
	require.NoError(t, os.WriteFile(keep, []byte("operator notes"), 0o640))
	// A directory named like the attachment makes that write fail after the artifact is on disk.
	require.NoError(t, os.Mkdir(filepath.Join(folder, "scan.pdf"), 0o750))

	p.repo.On("WithinTx", mock.Anything, mock.Anything).Return(nil)
	p.repo.On("Create", mock.Anything, mock.Anything).Return(&model.JournalEntry{ID: 5, FormattedNumber: "42-01"}, nil)

	_, err := p.svc.Commit(ctx, CommitRequest{PendingID: id})
	assert.True(t, apperr.Is(err, apperr.KindStorage), "got %v", err)

	assert.FileExists(t, keep)
	assert.NoFileExists(t, filepath.Join(folder, "исх_42-01.pdf"))
	assert.NoFileExists(t, filepath.Join(folder, "исх_42-01.pdf.sig"))
	_, err = p.pending.Load(ctx, id)
	assert.NoError(t, err, "pending registration survives a failed commit")
}

func TestRegistrationService_CommitUnknownPending(t *testing.T) {
	p := newPipeline(t, signing.ModeLocal, nil)

	_, err := p.svc.Commit(context.Background(), CommitRequest{PendingID: "1b4e28ba-2fa1-11d2-883f-0016d3cca427"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = p.svc.Commit(context.Background(), CommitRequest{})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestRegistrationService_RendererFailure(t *testing.T) {
	p := newPipeline(t, signing.ModeRemote, nil)
	p.expectCard(testCard(), docx.SampleTemplate())
	p.renderer.err = apperr.External("renderer", "document conversion timed out", "", errors.New("timeout"))

	_, err := p.svc.Prepare(context.Background(), PrepareRequest{CardID: testCardID})
	assert.True(t, apperr.Is(err, apperr.KindExternal))
}
