// Package crl checks archived certificate revocation lists, the sibling of
// OCSP evidence in adbe-revocationInfoArchival.
package crl

import (
	"crypto/x509"
	"errors"
	"fmt"
	"math/big"
	"time"

	pkicrypto "github.com/remiblancher/sigevidence/pkg/crypto"
	"github.com/remiblancher/sigevidence/pkg/x509util"
)

// Sentinel errors for CRL verification.
var (
	// ErrInvalidSignature indicates the CRL was not signed by the issuer.
	ErrInvalidSignature = errors.New("invalid CRL signature")

	// ErrMalformedCRL indicates DER that is not a CRL.
	ErrMalformedCRL = errors.New("malformed CRL")

	// ErrCertificateExpired is returned when the issuer has expired at the
	// check time.
	ErrCertificateExpired = x509util.ErrCertificateExpired

	// ErrCertificateNotYetValid is returned when the issuer is not yet valid
	// at the check time.
	ErrCertificateNotYetValid = x509util.ErrCertificateNotYetValid
)

// VerifyError represents a CRL verification error with structured context.
type VerifyError struct {
	Op  string // Operation: "parse", "issuer", "signature"
	Err error  // Underlying error
}

// Error implements the error interface.
func (e *VerifyError) Error() string {
	return fmt.Sprintf("crl %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *VerifyError) Unwrap() error { return e.Err }

// Verdict explains a verification outcome.
type Verdict int

const (
	VerdictNotRevoked Verdict = iota
	VerdictRevoked
	VerdictNotFresh
)

// String returns a human-readable verdict.
func (v Verdict) String() string {
	switch v {
	case VerdictNotRevoked:
		return "not revoked"
	case VerdictRevoked:
		return "revoked"
	case VerdictNotFresh:
		return "not fresh"
	default:
		return fmt.Sprintf("unknown(%d)", v)
	}
}

// Result contains the details behind a CRL verdict.
type Result struct {
	Verified         bool
	Verdict          Verdict
	ThisUpdate       time.Time
	NextUpdate       time.Time
	Number           *big.Int
	RevocationTime   time.Time
	RevocationReason int
}

// Verifier checks CRLs at a given point in time. It is safe for concurrent
// use.
type Verifier struct {
	// ClockSkew widens the [thisUpdate, nextUpdate] window on both ends.
	ClockSkew time.Duration
}

// NewVerifier returns a Verifier with no clock skew.
func NewVerifier() *Verifier {
	return &Verifier{}
}

// Verify reports whether crlDER proves that checked was not revoked by
// issuer at the given time. false with a nil error means revoked or stale.
func (v *Verifier) Verify(crlDER []byte, checked, issuer *x509.Certificate, at time.Time) (bool, error) {
	result, err := v.VerifyDetailed(crlDER, checked, issuer, at)
	if err != nil {
		return false, err
	}
	return result.Verified, nil
}

// VerifyDetailed is Verify returning the full Result.
func (v *Verifier) VerifyDetailed(crlDER []byte, checked, issuer *x509.Certificate, at time.Time) (*Result, error) {
	if checked == nil || issuer == nil {
		return nil, &VerifyError{Op: "verify", Err: errors.New("checked and issuer certificates are required")}
	}

	list, err := x509.ParseRevocationList(crlDER)
	if err != nil {
		return nil, &VerifyError{Op: "parse", Err: fmt.Errorf("%w: %v", ErrMalformedCRL, err)}
	}

	if err := x509util.CheckValidityAt(issuer, at); err != nil {
		return nil, &VerifyError{Op: "issuer", Err: err}
	}
	if err := pkicrypto.CheckSignedBy(list.Raw, issuer); err != nil {
		return nil, &VerifyError{Op: "signature", Err: fmt.Errorf("%w: %v", ErrInvalidSignature, err)}
	}

	result := &Result{
		ThisUpdate: list.ThisUpdate,
		NextUpdate: list.NextUpdate,
		Number:     list.Number,
	}

	if at.Before(list.ThisUpdate.Add(-v.ClockSkew)) ||
		(!list.NextUpdate.IsZero() && at.After(list.NextUpdate.Add(v.ClockSkew))) {
		result.Verdict = VerdictNotFresh
		return result, nil
	}

	for _, entry := range list.RevokedCertificateEntries {
		if entry.SerialNumber == nil || entry.SerialNumber.Cmp(checked.SerialNumber) != 0 {
			continue
		}
		if entry.RevocationTime.After(at) {
			// Revoked after the check time: still good at that time.
			break
		}
		result.Verdict = VerdictRevoked
		result.RevocationTime = entry.RevocationTime
		result.RevocationReason = entry.ReasonCode
		return result, nil
	}

	result.Verdict = VerdictNotRevoked
	result.Verified = true
	return result, nil
}
