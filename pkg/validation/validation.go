// Package validation runs the verification pipeline of an embedded CMS
// signature: parse the SignerInfo, check its signature over the preserved
// signed attributes, then check the archived OCSP responses and CRLs that
// prove the signer was not revoked at signing time.
package validation

import (
	"context"
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/remiblancher/sigevidence/pkg/audit"
	"github.com/remiblancher/sigevidence/pkg/cms"
	"github.com/remiblancher/sigevidence/pkg/conformance"
	pkicrypto "github.com/remiblancher/sigevidence/pkg/crypto"
	"github.com/remiblancher/sigevidence/pkg/crl"
	"github.com/remiblancher/sigevidence/pkg/ocsp"
	"github.com/remiblancher/sigevidence/pkg/policy"
)

// ErrIssuerNotFound is returned when no issuer is given and none of the
// candidates signed the signing certificate.
var ErrIssuerNotFound = errors.New("issuer certificate not found")

// Config contains the inputs of a validation run.
type Config struct {
	// Candidates are searched for the signing certificate and, when Issuer
	// is nil, for its issuer.
	Candidates []*x509.Certificate
	// Issuer is the CA that issued the signing certificate (optional).
	Issuer *x509.Certificate
	// At is the point in time the evidence must cover (default: now).
	At time.Time
	// Policy configures the verifiers (default: policy.Default()).
	Policy *policy.Policy
	// Content is the signed content; when set, the messageDigest attribute
	// is checked against it.
	Content []byte
	// Audit receives the events of the run in addition to the report
	// (optional).
	Audit audit.Writer
}

// EvidenceResult is the verdict for one archived evidence item.
type EvidenceResult struct {
	// Index is the position of the item in SignerInfo.RevocationEvidence,
	// which lists CRLs before OCSP responses. Results themselves are in
	// verification order, OCSP first.
	Index    int
	Kind     cms.EvidenceKind
	Verified bool
	Revoked  bool
	Verdict  string
	OCSP     *ocsp.Result
	CRL      *crl.Result
}

// Report is the outcome of a validation run.
type Report struct {
	SignerInfo *cms.SignerInfo
	Signer     *x509.Certificate
	Issuer     *x509.Certificate
	At         time.Time

	// SignatureValid is true once the signature over the signed attributes
	// verified. Validate returns an error otherwise.
	SignatureValid bool
	// ContentDigestValid is set when Config.Content was given.
	ContentDigestValid bool

	Evidence []EvidenceResult

	// Conformance holds the violation of the policy's conformance level,
	// nil when the SignerInfo conforms or no level is configured.
	Conformance error

	// Events is the hash-chained audit trail of the run.
	Events []audit.Event
}

// Revoked reports whether any evidence item proves revocation.
func (r *Report) Revoked() bool {
	for _, e := range r.Evidence {
		if e.Revoked {
			return true
		}
	}
	return false
}

// NotRevoked reports whether at least one evidence item proves the signer
// was not revoked and none proves it was.
func (r *Report) NotRevoked() bool {
	if r.Revoked() {
		return false
	}
	for _, e := range r.Evidence {
		if e.Verified {
			return true
		}
	}
	return false
}

// Valid reports whether the signature verified, the signer is proven not
// revoked and the conformance level, if any, is met.
func (r *Report) Valid() bool {
	return r.SignatureValid && r.NotRevoked() && r.Conformance == nil
}

// Validate checks a DER SignerInfo against candidates and the evidence it
// archives, at the given time, under p.
func Validate(ctx context.Context, der []byte, candidates []*x509.Certificate, issuer *x509.Certificate, at time.Time, p *policy.Policy) (*Report, error) {
	return Run(ctx, der, &Config{
		Candidates: candidates,
		Issuer:     issuer,
		At:         at,
		Policy:     p,
	})
}

// Run is Validate driven by a Config.
//
// A negative verdict (revoked, stale, unknown) is recorded in the report.
// Untrustworthy input (bad signature, malformed evidence, unauthorized
// responder) stops the run and the error is returned unchanged; the events
// written so far still reach Config.Audit.
func Run(ctx context.Context, der []byte, config *Config) (*Report, error) {
	if config == nil {
		config = &Config{}
	}
	p := config.Policy
	if p == nil {
		p = policy.Default()
	}
	at := config.At
	if at.IsZero() {
		at = time.Now()
	}

	trail := audit.NewMemoryWriter()
	var w audit.Writer = trail
	if config.Audit != nil {
		w = audit.NewMultiWriter(trail, config.Audit)
	}
	report := &Report{At: at}
	finish := func(err error) (*Report, error) {
		if err != nil {
			return nil, err
		}
		report.Events = trail.Events()
		return report, nil
	}

	si, err := cms.ParseSignerInfo(der, config.Candidates)
	details := signerInfoDetails(si, der)
	if logErr := w.Write(details.Event(audit.EventSignerInfoParsed, err)); logErr != nil {
		return nil, fmt.Errorf("audit log failed: %w", logErr)
	}
	if err != nil {
		return finish(err)
	}
	report.SignerInfo = si
	report.Signer = si.SigningCertificate()

	err = si.VerifySignature(nil)
	if err == nil && config.Content != nil {
		err = si.VerifyContentDigest(config.Content)
		report.ContentDigestValid = err == nil
	}
	if logErr := w.Write(details.Event(audit.EventSignatureValidate, err)); logErr != nil {
		return nil, fmt.Errorf("audit log failed: %w", logErr)
	}
	if err != nil {
		return finish(err)
	}
	report.SignatureValid = true

	if p.Conformance != conformance.None {
		report.Conformance = conformance.Check(p.Conformance, si)
	}

	evidence, err := si.RevocationEvidence()
	if err != nil {
		return finish(err)
	}
	if len(evidence) == 0 {
		return finish(nil)
	}

	issuer := config.Issuer
	if issuer == nil {
		if issuer, err = findIssuer(report.Signer, config.Candidates); err != nil {
			return finish(err)
		}
	}
	report.Issuer = issuer

	// OCSP before CRL, archive order within a kind.
	order := make([]int, len(evidence))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return evidence[order[i]].Kind < evidence[order[j]].Kind
	})

	ocspVerifier := p.OCSPVerifier()
	crlVerifier := p.CRLVerifier()
	for _, idx := range order {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}

		ev := evidence[idx]
		result := EvidenceResult{Index: idx, Kind: ev.Kind}
		ed := audit.EvidenceDetails{
			Subject:   report.Signer.Subject.String(),
			Serial:    fmt.Sprintf("0x%X", report.Signer.SerialNumber),
			CheckTime: at.UTC().Format(time.RFC3339),
			DER:       ev.DER,
		}

		var eventType audit.EventType
		switch ev.Kind {
		case cms.EvidenceOCSP:
			eventType = audit.EventOCSPVerify
			var res *ocsp.Result
			res, err = ocspVerifier.VerifyDetailed(ev.DER, report.Signer, issuer, at)
			if err == nil {
				result.OCSP = res
				result.Verified = res.Verified
				result.Revoked = res.Verdict == ocsp.VerdictRevoked
				result.Verdict = res.Verdict.String()
				ed.Responder = res.Responder.Subject.String()
				ed.Delegated = res.Delegated
			}
		case cms.EvidenceCRL:
			eventType = audit.EventCRLVerify
			var res *crl.Result
			res, err = crlVerifier.VerifyDetailed(ev.DER, report.Signer, issuer, at)
			if err == nil {
				result.CRL = res
				result.Verified = res.Verified
				result.Revoked = res.Verdict == crl.VerdictRevoked
				result.Verdict = res.Verdict.String()
			}
		default:
			err = fmt.Errorf("unsupported evidence kind %s", ev.Kind)
		}
		ed.Verdict = result.Verdict

		if logErr := w.Write(ed.Event(eventType, err)); logErr != nil {
			return nil, fmt.Errorf("audit log failed: %w", logErr)
		}
		if err != nil {
			return finish(err)
		}
		report.Evidence = append(report.Evidence, result)
	}
	return finish(nil)
}

// findIssuer returns the candidate whose key signed cert.
func findIssuer(cert *x509.Certificate, candidates []*x509.Certificate) (*x509.Certificate, error) {
	for _, c := range candidates {
		if c.Equal(cert) {
			continue
		}
		if pkicrypto.CheckSignedBy(cert.Raw, c) == nil {
			return c, nil
		}
	}
	return nil, ErrIssuerNotFound
}

func signerInfoDetails(si *cms.SignerInfo, der []byte) audit.SignerInfoDetails {
	d := audit.SignerInfoDetails{DER: der, Size: len(der)}
	if si == nil {
		return d
	}
	d.Algorithm = oidString(si.SignatureAlgorithm().Algorithm)
	d.Digest = oidString(si.DigestAlgorithm().Algorithm)
	if evidence, err := si.RevocationEvidence(); err == nil {
		d.Evidence = len(evidence)
	}
	if cert := si.SigningCertificate(); cert != nil {
		d.Subject = cert.Subject.String()
		d.Serial = fmt.Sprintf("0x%X", cert.SerialNumber)
	}
	return d
}

func oidString(oid asn1.ObjectIdentifier) string {
	if len(oid) == 0 {
		return ""
	}
	return oid.String()
}
