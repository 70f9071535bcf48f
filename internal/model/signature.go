package model

// CertInfo describes the certificate a detached signature was made with.
type CertInfo struct {
	Serial     string `json:"serial,omitempty"`
	Owner      string `json:"owner,omitempty"`
	Issuer     string `json:"issuer,omitempty"`
	ValidFrom  string `json:"valid_from,omitempty"`
	ValidTo    string `json:"valid_to,omitempty"`
	Thumbprint string `json:"thumbprint,omitempty"`
}

// Signature is a detached signature bound to a rendered artifact.
type Signature struct {
	Data []byte   `json:"-"`
	Cert CertInfo `json:"cert"`
}

// MarkerSet records which template markers a document carries.
type MarkerSet struct {
	Number bool `json:"number"`
	Date   bool `json:"date"`
	Stamp  bool `json:"stamp"`
}

// Any reports whether at least one marker was found.
func (m MarkerSet) Any() bool { return m.Number || m.Date || m.Stamp }
