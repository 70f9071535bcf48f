package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"outboxapi/internal/apperr"
	"outboxapi/internal/artifact"
	"outboxapi/internal/model"
	"outboxapi/internal/numbering"
	"outboxapi/internal/repository"
	repoMocks "outboxapi/internal/repository/mocks"
)

type staticRules map[string]model.NumberingRule

func (r staticRules) Resolve(executorID string) model.NumberingRule {
	if rule, ok := r[executorID]; ok {
		return rule
	}
	return r["default"]
}

var testRules = staticRules{
	"default": {ExecutorCode: "01", FormatTemplate: "{number}-{executor_code}", StartNumber: 1},
	"7":       {ExecutorCode: "07", FormatTemplate: "{number}-{executor_code}", StartNumber: 100, ResetYearly: true},
}

type failingRemove struct{ *artifact.Store }

func (failingRemove) Remove(string) error { return errors.New("device busy") }

func newJournalService(t *testing.T, repo *repoMocks.MockJournalRepository, arts ArtifactStore) (JournalService, *Metrics) {
	t.Helper()
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	alloc := numbering.NewAllocator(repo, numbering.ScopeGlobal, time.UTC)
	return NewJournalService(repo, testRules, alloc, arts, m, time.UTC, zerolog.Nop()), m
}

func date(y int, m time.Month, d int) model.Date {
	return model.NewDate(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

func intPtr(n int) *int       { return &n }
func strPtr(s string) *string { return &s }

func TestJournalService_List(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		query      JournalQuery
		setupMocks func(mRepo *repoMocks.MockJournalRepository)
		wantLimit  int
		wantErr    string
	}{
		{
			name:  "default limit",
			query: JournalQuery{Year: 2026},
			setupMocks: func(mRepo *repoMocks.MockJournalRepository) {
				mRepo.On("List", ctx, repository.JournalFilter{Year: 2026}, repository.PageQuery{Limit: 100}).
					Return(&repository.PageResult[model.JournalEntry]{Items: []model.JournalEntry{{ID: 1}}, Total: 1}, nil)
			},
			wantLimit: 100,
		},
		{
			name:  "limit capped",
			query: JournalQuery{Limit: 5000, Offset: -3},
			setupMocks: func(mRepo *repoMocks.MockJournalRepository) {
				mRepo.On("List", ctx, repository.JournalFilter{}, repository.PageQuery{Limit: 1000}).
					Return(&repository.PageResult[model.JournalEntry]{}, nil)
			},
			wantLimit: 1000,
		},
		{
			name:       "invalid month",
			query:      JournalQuery{Month: 13},
			setupMocks: func(*repoMocks.MockJournalRepository) {},
			wantErr:    "INVALID_MONTH",
		},
		{
			name:  "repository error",
			query: JournalQuery{},
			setupMocks: func(mRepo *repoMocks.MockJournalRepository) {
				mRepo.On("List", ctx, mock.Anything, mock.Anything).Return(nil, errors.New("db down"))
			},
			wantErr: "list journal: db down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mRepo := new(repoMocks.MockJournalRepository)
			tt.setupMocks(mRepo)
			svc, _ := newJournalService(t, mRepo, artifact.NewStore(t.TempDir(), zerolog.Nop()))

			res, err := svc.List(ctx, tt.query)
			if tt.wantErr != "" {
				require.Error(t, err)
				if ae, ok := apperr.As(err); ok {
					assert.Equal(t, tt.wantErr, ae.Code)
				} else {
					assert.EqualError(t, err, tt.wantErr)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLimit, res.Limit)
			assert.Equal(t, 0, res.Offset)
			mRepo.AssertExpectations(t)
		})
	}
}

func TestJournalService_Get(t *testing.T) {
	ctx := context.Background()
	mRepo := new(repoMocks.MockJournalRepository)
	mRepo.On("FindByID", ctx, int64(1)).Return(&model.JournalEntry{ID: 1, FormattedNumber: "1-01"}, nil)
	mRepo.On("FindByID", ctx, int64(2)).Return(nil, repository.ErrNotFound)
	svc, _ := newJournalService(t, mRepo, artifact.NewStore(t.TempDir(), zerolog.Nop()))

	e, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "1-01", e.FormattedNumber)

	_, err = svc.Get(ctx, 2)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestJournalService_Artifact(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		kind     model.ArtifactKind
		arts     *model.JournalArtifacts
		wantName string
		wantType string
		wantKind apperr.Kind
	}{
		{
			name:     "pdf",
			kind:     model.ArtifactPDF,
			arts:     &model.JournalArtifacts{ArtifactName: "исх_42-01.pdf", SignedArtifact: []byte("%PDF")},
			wantName: "исх_42-01.pdf",
			wantType: "application/pdf",
		},
		{
			name:     "signature named after the artifact",
			kind:     model.ArtifactSignature,
			arts:     &model.JournalArtifacts{SignatureBlob: []byte{0x30}},
			wantName: "исх_42-01.pdf.sig",
			wantType: "application/pkcs7-signature",
		},
		{
			name:     "attachments",
			kind:     model.ArtifactAttachments,
			arts:     &model.JournalArtifacts{AttachmentsArchive: []byte("PK")},
			wantName: "attachments_42-01.zip",
			wantType: "application/zip",
		},
		{
			name:     "missing payload",
			kind:     model.ArtifactAttachments,
			arts:     &model.JournalArtifacts{SignedArtifact: []byte("%PDF")},
			wantKind: apperr.KindNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mRepo := new(repoMocks.MockJournalRepository)
			mRepo.On("FindByID", ctx, int64(5)).Return(&model.JournalEntry{ID: 5, FormattedNumber: "42-01"}, nil)
			mRepo.On("FindArtifacts", ctx, int64(5)).Return(tt.arts, nil)
			svc, _ := newJournalService(t, mRepo, artifact.NewStore(t.TempDir(), zerolog.Nop()))

			f, err := svc.Artifact(ctx, 5, tt.kind)
			if tt.wantName == "" {
				assert.True(t, apperr.Is(err, tt.wantKind), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, f.Name)
			assert.Equal(t, tt.wantType, f.ContentType)
			assert.NotEmpty(t, f.Data)
		})
	}

	t.Run("unknown kind", func(t *testing.T) {
		svc, _ := newJournalService(t, new(repoMocks.MockJournalRepository), artifact.NewStore(t.TempDir(), zerolog.Nop()))
		_, err := svc.Artifact(ctx, 5, "docx")
		assert.True(t, apperr.Is(err, apperr.KindValidation))
	})
}

func TestJournalService_Create(t *testing.T) {
	ctx := context.Background()
	today := model.NewDate(time.Now().UTC())

	tests := []struct {
		name       string
		req        CreateEntryRequest
		setupMocks func(mRepo *repoMocks.MockJournalRepository)
		wantNumber string
		wantKind   apperr.Kind
		wantCode   string
	}{
		{
			name: "allocates the next number",
			req:  CreateEntryRequest{Recipient: "ООО Ромашка", Executor: "Иванов И.И."},
			setupMocks: func(mRepo *repoMocks.MockJournalRepository) {
				mRepo.On("MaxSequence", ctx, model.Scope{}).Return(41, nil)
				mRepo.On("WithinTx", ctx, mock.Anything).Return(nil)
				mRepo.On("NumberTaken", ctx, "42-01", int64(0)).Return(false, nil)
				mRepo.On("Create", ctx, mock.MatchedBy(func(e *model.JournalEntry) bool {
					return e.SequenceNumber == 42 && e.ExecutorCode == "01" && e.IssueDate.Equal(today.Time)
				})).Return(&model.JournalEntry{ID: 9, FormattedNumber: "42-01"}, nil)
			},
			wantNumber: "42-01",
		},
		{
			name: "explicit number is formatted by the rule",
			req: CreateEntryRequest{
				ExecutorID: "7", SequenceNumber: intPtr(150), IssueDate: ptrDate(date(2025, 12, 30)),
				Recipient: "АО Лютик", Executor: "Петров П.П.",
			},
			setupMocks: func(mRepo *repoMocks.MockJournalRepository) {
				mRepo.On("WithinTx", ctx, mock.Anything).Return(nil)
				mRepo.On("NumberTaken", ctx, "150-07", int64(0)).Return(false, nil)
				mRepo.On("Create", ctx, mock.MatchedBy(func(e *model.JournalEntry) bool {
					return e.Scope == model.Scope{Year: 2025} && e.FormattedNumber == "150-07"
				})).Return(&model.JournalEntry{ID: 10, FormattedNumber: "150-07"}, nil)
			},
			wantNumber: "150-07",
		},
		{
			name: "number already taken",
			req:  CreateEntryRequest{SequenceNumber: intPtr(42), Recipient: "x", Executor: "y"},
			setupMocks: func(mRepo *repoMocks.MockJournalRepository) {
				mRepo.On("WithinTx", ctx, mock.Anything).Return(nil)
				mRepo.On("NumberTaken", ctx, "42-01", int64(0)).Return(true, nil)
			},
			wantKind: apperr.KindConflict,
			wantCode: "NUMBER_TAKEN",
		},
		{
			name: "unique violation on insert",
			req:  CreateEntryRequest{SequenceNumber: intPtr(42), Recipient: "x", Executor: "y"},
			setupMocks: func(mRepo *repoMocks.MockJournalRepository) {
				mRepo.On("WithinTx", ctx, mock.Anything).Return(nil)
				mRepo.On("NumberTaken", ctx, "42-01", int64(0)).Return(false, nil)
				mRepo.On("Create", ctx, mock.Anything).
					Return(nil, fmt.Errorf("%w: outbox_journal_scope_sequence_key", repository.ErrConflict))
			},
			wantKind: apperr.KindConflict,
			wantCode: "NUMBER_TAKEN",
		},
		{
			name:       "recipient required",
			req:        CreateEntryRequest{Executor: "y"},
			setupMocks: func(*repoMocks.MockJournalRepository) {},
			wantKind:   apperr.KindValidation,
			wantCode:   "RECIPIENT_REQUIRED",
		},
		{
			name: "allocated number needs a date in the current period",
			req: CreateEntryRequest{
				ExecutorID: "7", IssueDate: ptrDate(date(2001, 1, 1)), Recipient: "x", Executor: "y",
			},
			setupMocks: func(mRepo *repoMocks.MockJournalRepository) {
				mRepo.On("MaxSequence", ctx, model.Scope{Year: today.Year()}).Return(0, nil)
			},
			wantKind: apperr.KindValidation,
			wantCode: "ISSUE_DATE_OUT_OF_SCOPE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mRepo := new(repoMocks.MockJournalRepository)
			tt.setupMocks(mRepo)
			svc, m := newJournalService(t, mRepo, artifact.NewStore(t.TempDir(), zerolog.Nop()))

			e, err := svc.Create(ctx, tt.req)
			if tt.wantNumber == "" {
				ae, ok := apperr.As(err)
				require.True(t, ok, "got %v", err)
				assert.Equal(t, tt.wantKind, ae.Kind)
				assert.Equal(t, tt.wantCode, ae.Code)
				if tt.wantKind == apperr.KindConflict {
					assert.Equal(t, float64(1), testutil.ToFloat64(m.registrations.WithLabelValues(OutcomeConflict)))
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantNumber, e.FormattedNumber)
			assert.Equal(t, float64(1), testutil.ToFloat64(m.registrations.WithLabelValues(OutcomeManual)))
			mRepo.AssertExpectations(t)
		})
	}
}

func ptrDate(d model.Date) *model.Date { return &d }

func TestJournalService_Update(t *testing.T) {
	ctx := context.Background()
	existing := func() *model.JournalEntry {
		return &model.JournalEntry{
			ID: 3, SequenceNumber: 42, FormattedNumber: "42-01", IssueDate: date(2025, 12, 30),
			Recipient: "ООО Ромашка", Scope: model.Scope{Year: 2025},
		}
	}

	tests := []struct {
		name       string
		patch      model.JournalPatch
		setupMocks func(mRepo *repoMocks.MockJournalRepository)
		wantErr    bool
		wantKind   apperr.Kind
		check      func(t *testing.T, e *model.JournalEntry)
	}{
		{
			name:  "date move recomputes scope year",
			patch: model.JournalPatch{IssueDate: ptrDate(date(2026, 1, 2)), Recipient: strPtr(" АО Лютик ")},
			setupMocks: func(mRepo *repoMocks.MockJournalRepository) {
				mRepo.On("WithinTx", ctx, mock.Anything).Return(nil)
				mRepo.On("FindByID", ctx, int64(3)).Return(existing(), nil)
				mRepo.On("Update", ctx, mock.MatchedBy(func(e *model.JournalEntry) bool {
					return e.Scope.Year == 2026 && e.Recipient == "АО Лютик"
				})).Return(&model.JournalEntry{ID: 3, IssueDate: date(2026, 1, 2), Recipient: "АО Лютик"}, nil)
			},
			check: func(t *testing.T, e *model.JournalEntry) {
				assert.Equal(t, "2026-01-02", e.IssueDate.String())
			},
		},
		{
			name:  "changed number already taken",
			patch: model.JournalPatch{FormattedNumber: strPtr("43-01")},
			setupMocks: func(mRepo *repoMocks.MockJournalRepository) {
				mRepo.On("WithinTx", ctx, mock.Anything).Return(nil)
				mRepo.On("FindByID", ctx, int64(3)).Return(existing(), nil)
				mRepo.On("NumberTaken", ctx, "43-01", int64(3)).Return(true, nil)
			},
			wantErr:  true,
			wantKind: apperr.KindConflict,
		},
		{
			name:  "unchanged number is not re-checked",
			patch: model.JournalPatch{FormattedNumber: strPtr("42-01"), SequenceNumber: intPtr(42)},
			setupMocks: func(mRepo *repoMocks.MockJournalRepository) {
				mRepo.On("WithinTx", ctx, mock.Anything).Return(nil)
				mRepo.On("FindByID", ctx, int64(3)).Return(existing(), nil)
				mRepo.On("Update", ctx, mock.Anything).Return(existing(), nil)
			},
		},
		{
			name:  "missing entry",
			patch: model.JournalPatch{Recipient: strPtr("x")},
			setupMocks: func(mRepo *repoMocks.MockJournalRepository) {
				mRepo.On("WithinTx", ctx, mock.Anything).Return(nil)
				mRepo.On("FindByID", ctx, int64(3)).Return(nil, repository.ErrNotFound)
			},
			wantErr:  true,
			wantKind: apperr.KindNotFound,
		},
		{
			name:       "empty patch",
			setupMocks: func(*repoMocks.MockJournalRepository) {},
			wantErr:    true,
			wantKind:   apperr.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mRepo := new(repoMocks.MockJournalRepository)
			tt.setupMocks(mRepo)
			svc, _ := newJournalService(t, mRepo, artifact.NewStore(t.TempDir(), zerolog.Nop()))

			e, err := svc.Update(ctx, 3, tt.patch)
			if tt.wantErr {
				assert.True(t, apperr.Is(err, tt.wantKind), "got %v", err)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, e)
			}
			mRepo.AssertExpectations(t)
		})
	}
}

func TestJournalService_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("removes row and folder", func(t *testing.T) {
		root := t.TempDir()
		folder := filepath.Join(root, "42-01")
		require.NoError(t, os.MkdirAll(folder, 0o750))
		require.NoError(t, os.WriteFile(filepath.Join(folder, "a.pdf"), []byte("x"), 0o640))

		mRepo := new(repoMocks.MockJournalRepository)
		mRepo.On("FindByID", ctx, int64(1)).Return(&model.JournalEntry{ID: 1, FolderPath: folder}, nil)
		mRepo.On("Delete", ctx, int64(1)).Return(nil)
		svc, _ := newJournalService(t, mRepo, artifact.NewStore(root, zerolog.Nop()))

		require.NoError(t, svc.Delete(ctx, 1))
		assert.NoDirExists(t, folder)
	})

	t.Run("folder failure does not block deletion", func(t *testing.T) {
		mRepo := new(repoMocks.MockJournalRepository)
		mRepo.On("FindByID", ctx, int64(1)).Return(&model.JournalEntry{ID: 1, FolderPath: "/data/outgoing/1"}, nil)
		mRepo.On("Delete", ctx, int64(1)).Return(nil)
		svc, _ := newJournalService(t, mRepo, failingRemove{artifact.NewStore(t.TempDir(), zerolog.Nop())})

		assert.NoError(t, svc.Delete(ctx, 1))
		mRepo.AssertExpectations(t)
	})

	t.Run("missing entry", func(t *testing.T) {
		mRepo := new(repoMocks.MockJournalRepository)
		mRepo.On("FindByID", ctx, int64(1)).Return(nil, repository.ErrNotFound)
		svc, _ := newJournalService(t, mRepo, artifact.NewStore(t.TempDir(), zerolog.Nop()))

		err := svc.Delete(ctx, 1)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
		mRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})
}

func TestJournalService_Export(t *testing.T) {
	ctx := context.Background()
	mRepo := new(repoMocks.MockJournalRepository)
	mRepo.On("List", ctx, repository.JournalFilter{Year: 2026, Month: 3}, repository.PageQuery{}).
		Return(&repository.PageResult[model.JournalEntry]{
			Items: []model.JournalEntry{{SequenceNumber: 1, FormattedNumber: "1-01", IssueDate: date(2026, 3, 1)}},
			Total: 1,
		}, nil)
	svc, _ := newJournalService(t, mRepo, artifact.NewStore(t.TempDir(), zerolog.Nop()))

	f, err := svc.Export(ctx, JournalQuery{Year: 2026, Month: 3})
	require.NoError(t, err)
	assert.Equal(t, "journal_2026_03.xlsx", f.Name)

	wb, err := excelize.OpenReader(bytes.NewReader(f.Data))
	require.NoError(t, err)
	defer wb.Close()
	rows, err := wb.GetRows(wb.GetSheetName(0))
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestJournalService_NextNumber(t *testing.T) {
	ctx := context.Background()
	mRepo := new(repoMocks.MockJournalRepository)
	year := time.Now().UTC().Year()
	mRepo.On("MaxSequence", ctx, model.Scope{Year: year}).Return(0, nil)
	svc, _ := newJournalService(t, mRepo, artifact.NewStore(t.TempDir(), zerolog.Nop()))

	a, err := svc.NextNumber(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, 100, a.SequenceNumber)
	assert.Equal(t, "100-07", a.FormattedNumber)
}
