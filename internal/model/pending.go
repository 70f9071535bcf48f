package model

import "time"

// PendingRegistration is a prepared document waiting for its signature and commit.
type PendingRegistration struct {
	ID              string     `json:"id"`
	CardID          int64      `json:"card_id"`
	SourceReference string     `json:"source_reference,omitempty"`
	ExecutorID      string     `json:"executor_id"`
	Executor        string     `json:"executor"`
	Recipient       string     `json:"recipient"`
	ContentSummary  string     `json:"content_summary,omitempty"`
	TemplateName    string     `json:"template_name"`
	Allocation      Allocation `json:"allocation"`
	SignMode        string     `json:"sign_mode"`
	Signed          bool       `json:"signed"`
	Cert            *CertInfo  `json:"cert,omitempty"`
	Attachments     []string   `json:"attachments,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// ArtifactName is the base file name of the rendered PDF inside the numbered folder.
func (p PendingRegistration) ArtifactName() string {
	return "исх_" + SafeName(p.Allocation.FormattedNumber) + ".pdf"
}
