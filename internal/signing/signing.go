package signing

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"outboxapi/internal/apperr"
	"outboxapi/internal/config"
	"outboxapi/internal/model"
	"outboxapi/internal/subprocess"
)

// Signing modes.
const (
	ModeLocal  = "local"
	ModeRemote = "remote"
)

const (
	artifactFile  = "document.pdf"
	signatureFile = "document.pdf.sig"
)

// Runner is the subset of subprocess.Runner used for cryptcp.
type Runner interface {
	Run(ctx context.Context, job subprocess.Job) (subprocess.Result, error)
}

// Coordinator produces or accepts detached signatures for rendered artifacts.
type Coordinator struct {
	mode       string
	runner     Runner
	verifier   Verifier
	binary     string
	thumbprint string
	timeout    time.Duration
	cert       model.CertInfo
	log        zerolog.Logger
}

func NewCoordinator(cfg config.SigningConfig, runner Runner, verifier Verifier, log zerolog.Logger) *Coordinator {
	mode := cfg.Mode
	if mode != ModeLocal {
		mode = ModeRemote
	}
	return &Coordinator{
		mode:       mode,
		runner:     runner,
		verifier:   verifier,
		binary:     cfg.Binary,
		thumbprint: cfg.Thumbprint,
		timeout:    cfg.Timeout,
		cert: model.CertInfo{
			Serial:     cfg.CertSerial,
			Owner:      cfg.CertOwner,
			Issuer:     cfg.CertIssuer,
			ValidFrom:  cfg.ValidFrom,
			ValidTo:    cfg.ValidTo,
			Thumbprint: cfg.Thumbprint,
		},
		log: log.With().Str("component", "signing").Logger(),
	}
}

// Mode reports "local" or "remote".
func (c *Coordinator) Mode() string { return c.mode }

// Local reports whether the server signs artifacts itself.
func (c *Coordinator) Local() bool { return c.mode == ModeLocal }

// ConfiguredCert is the certificate described by settings; it is what the
// stamp shows for locally signed documents.
func (c *Coordinator) ConfiguredCert() model.CertInfo { return c.cert }

// SignLocal signs artifact with the server-side cryptcp utility.
func (c *Coordinator) SignLocal(ctx context.Context, artifact []byte) (model.Signature, error) {
	res, err := c.runner.Run(ctx, subprocess.Job{
		Name:   "sign",
		Binary: c.binary,
		Args: func(string) []string {
			args := []string{"-sign", "-der"}
			if c.thumbprint != "" {
				args = append(args, "-thumbprint", c.thumbprint)
			}
			return append(args, artifactFile, signatureFile)
		},
		Inputs:  map[string][]byte{artifactFile: artifact},
		Output:  signatureFile,
		Timeout: c.timeout,
	})
	if err != nil {
		detail := ""
		var rerr *subprocess.RunError
		if errors.As(err, &rerr) {
			detail = rerr.Combined
		}
		msg := "signing failed"
		if errors.Is(err, subprocess.ErrTimeout) {
			msg = "signing timed out"
		}
		return model.Signature{}, apperr.External("signer", msg, detail, err)
	}
	if len(res.Output) == 0 {
		return model.Signature{}, apperr.External("signer", "signer produced an empty signature", res.Combined, nil)
	}
	c.log.Info().Int("artifact_bytes", len(artifact)).Int("signature_bytes", len(res.Output)).Msg("artifact signed locally")
	return model.Signature{Data: res.Output, Cert: c.cert}, nil
}

// AcceptRemote decodes a client-produced base64 signature and verifies it
// against artifact. hint carries certificate details reported by the client;
// details read from the signature itself take precedence.
func (c *Coordinator) AcceptRemote(ctx context.Context, artifact []byte, payload string, hint model.CertInfo) (model.Signature, error) {
	data, err := decodeSignature(payload)
	if err != nil {
		return model.Signature{}, apperr.Validation("SIGNATURE_MALFORMED", "signature is not valid base64")
	}
	if len(data) == 0 {
		return model.Signature{}, apperr.Validation("SIGNATURE_EMPTY", "signature is empty")
	}

	ok, err := c.verifier.Verify(ctx, artifact, data)
	if err != nil {
		return model.Signature{}, apperr.External("signer", "signature verification failed to run", "", err)
	}
	if !ok {
		return model.Signature{}, apperr.Validation("SIGNATURE_INVALID", "signature does not match the prepared document")
	}

	cert := hint
	if insp, isInspector := c.verifier.(CertInspector); isInspector {
		if got, found := insp.Inspect(data); found {
			cert = mergeCert(got, hint)
		}
	}
	return model.Signature{Data: data, Cert: cert}, nil
}

func decodeSignature(payload string) ([]byte, error) {
	s := strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, payload)
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}

func mergeCert(primary, fallback model.CertInfo) model.CertInfo {
	pick := func(a, b string) string {
		if a != "" {
			return a
		}
		return b
	}
	return model.CertInfo{
		Serial:     pick(primary.Serial, fallback.Serial),
		Owner:      pick(primary.Owner, fallback.Owner),
		Issuer:     pick(primary.Issuer, fallback.Issuer),
		ValidFrom:  pick(primary.ValidFrom, fallback.ValidFrom),
		ValidTo:    pick(primary.ValidTo, fallback.ValidTo),
		Thumbprint: pick(primary.Thumbprint, fallback.Thumbprint),
	}
}
