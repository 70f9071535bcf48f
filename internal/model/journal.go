package model

import "time"

// JournalEntry is the authoritative registration record of an outgoing document.
// Binary payloads are kept out of JSON and loaded separately via JournalArtifacts.
type JournalEntry struct {
	ID              int64     `json:"id"`
	SequenceNumber  int       `json:"sequence_number"`
	FormattedNumber string    `json:"formatted_number"`
	IssueDate       Date      `json:"issue_date"`
	Recipient       string    `json:"recipient"`
	Executor        string    `json:"executor"`
	ExecutorCode    string    `json:"executor_code"`
	ContentSummary  string    `json:"content_summary,omitempty"`
	SourceReference string    `json:"source_reference,omitempty"`
	FolderPath      string    `json:"folder_path"`
	Scope           Scope     `json:"-"`
	CreatedAt       time.Time `json:"created_at"`

	Artifacts *JournalArtifacts `json:"-"`
}

// JournalArtifacts are the binary copies stored alongside an entry.
type JournalArtifacts struct {
	ArtifactName       string
	SignedArtifact     []byte
	SignatureBlob      []byte
	AttachmentsArchive []byte
}

// ArtifactKind names a downloadable payload of an entry.
type ArtifactKind string

const (
	ArtifactPDF         ArtifactKind = "pdf"
	ArtifactSignature   ArtifactKind = "sig"
	ArtifactAttachments ArtifactKind = "attachments"
)

// JournalPatch carries the correctable fields of an entry. Nil means unchanged.
type JournalPatch struct {
	SequenceNumber  *int    `json:"sequence_number,omitempty"`
	FormattedNumber *string `json:"formatted_number,omitempty"`
	IssueDate       *Date   `json:"issue_date,omitempty"`
	Recipient       *string `json:"recipient,omitempty"`
	Executor        *string `json:"executor,omitempty"`
	FolderPath      *string `json:"folder_path,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p JournalPatch) Empty() bool {
	return p.SequenceNumber == nil && p.FormattedNumber == nil && p.IssueDate == nil &&
		p.Recipient == nil && p.Executor == nil && p.FolderPath == nil
}
