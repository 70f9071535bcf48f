package signing

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.mozilla.org/pkcs7"

	"outboxapi/internal/model"
	"outboxapi/internal/subprocess"
)

// Verification modes.
const (
	VerifyPKCS7   = "pkcs7"
	VerifyCryptcp = "cryptcp"
	VerifyNone    = "none"
)

// Verifier checks a detached signature against the exact artifact bytes.
// A false result with a nil error means the signature does not match.
type Verifier interface {
	Verify(ctx context.Context, artifact, signature []byte) (bool, error)
}

// CertInspector is implemented by verifiers that can read the signer
// certificate out of the signature.
type CertInspector interface {
	Inspect(signature []byte) (model.CertInfo, bool)
}

// NewVerifier builds the verifier for mode.
func NewVerifier(mode string, runner Runner, binary string, timeout time.Duration, log zerolog.Logger) (Verifier, error) {
	switch mode {
	case VerifyPKCS7, "":
		return PKCS7Verifier{}, nil
	case VerifyCryptcp:
		return &CryptcpVerifier{runner: runner, binary: binary, timeout: timeout}, nil
	case VerifyNone:
		return &NoneVerifier{log: log.With().Str("component", "signing").Logger()}, nil
	default:
		return nil, fmt.Errorf("unknown verify mode %q", mode)
	}
}

// PKCS7Verifier verifies a DER-encoded detached CMS signature. The chain to a
// trusted root is not checked; only that the signer's key signed these bytes.
type PKCS7Verifier struct{}

func (PKCS7Verifier) Verify(_ context.Context, artifact, signature []byte) (bool, error) {
	p7, err := pkcs7.Parse(signature)
	if err != nil {
		return false, nil
	}
	p7.Content = artifact
	if err := p7.Verify(); err != nil {
		return false, nil
	}
	return true, nil
}

func (PKCS7Verifier) Inspect(signature []byte) (model.CertInfo, bool) {
	p7, err := pkcs7.Parse(signature)
	if err != nil {
		return model.CertInfo{}, false
	}
	cert := p7.GetOnlySigner()
	if cert == nil {
		return model.CertInfo{}, false
	}
	return certInfoOf(cert), true
}

func certInfoOf(cert *x509.Certificate) model.CertInfo {
	return model.CertInfo{
		Serial:    strings.ToUpper(cert.SerialNumber.Text(16)),
		Owner:     cert.Subject.CommonName,
		Issuer:    cert.Issuer.CommonName,
		ValidFrom: cert.NotBefore.Format(model.DisplayLayout),
		ValidTo:   cert.NotAfter.Format(model.DisplayLayout),
	}
}

// CryptcpVerifier delegates to the CryptoPro command line utility, which
// understands GOST algorithms the pure Go verifier does not.
type CryptcpVerifier struct {
	runner  Runner
	binary  string
	timeout time.Duration
}

func (v *CryptcpVerifier) Verify(ctx context.Context, artifact, signature []byte) (bool, error) {
	_, err := v.runner.Run(ctx, subprocess.Job{
		Name:   "verify",
		Binary: v.binary,
		Args: func(string) []string {
			return []string{"-verify", "-detached", artifactFile, signatureFile}
		},
		Inputs:  map[string][]byte{artifactFile: artifact, signatureFile: signature},
		Timeout: v.timeout,
	})
	if err == nil {
		return true, nil
	}
	var rerr *subprocess.RunError
	if errors.As(err, &rerr) && rerr.ExitCode > 0 {
		return false, nil
	}
	return false, err
}

// NoneVerifier accepts everything. It exists for development against a board
// without a signing client.
type NoneVerifier struct {
	log zerolog.Logger
}

func (v *NoneVerifier) Verify(context.Context, []byte, []byte) (bool, error) {
	v.log.Warn().Msg("signature verification is disabled, accepting signature unchecked")
	return true, nil
}
