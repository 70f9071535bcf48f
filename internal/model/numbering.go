package model

// NumberingRule is the numbering policy of one executor.
type NumberingRule struct {
	ExecutorCode   string `json:"executor_code"`
	FormatTemplate string `json:"format"`
	StartNumber    int    `json:"start_number"`
	ResetYearly    bool   `json:"reset_yearly"`
}

// Scope restricts which committed entries compete for a sequence number.
// Year 0 means every year, an empty Executor means every executor.
type Scope struct {
	Year     int    `json:"year"`
	Executor string `json:"executor,omitempty"`
}

// Allocation is a proposed number. It only becomes durable when committed to the journal.
type Allocation struct {
	SequenceNumber  int    `json:"sequence_number"`
	FormattedNumber string `json:"formatted_number"`
	IssueDate       Date   `json:"issue_date"`
	ExecutorCode    string `json:"executor_code"`
	Scope           Scope  `json:"scope"`
}
