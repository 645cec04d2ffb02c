package ocsp

import (
	"bytes"
	"crypto/sha1"
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"
	"time"

	pkicrypto "github.com/remiblancher/sigevidence/pkg/crypto"
	"github.com/remiblancher/sigevidence/pkg/x509util"
)

// MissingNextUpdatePolicy decides how a SingleResponse without nextUpdate
// is treated.
type MissingNextUpdatePolicy int

const (
	// AcceptMissingNextUpdate treats the status as valid from thisUpdate on.
	AcceptMissingNextUpdate MissingNextUpdatePolicy = iota
	// RejectMissingNextUpdate treats the response as stale.
	RejectMissingNextUpdate
	// GraceMissingNextUpdate accepts the status for Verifier.Grace after
	// thisUpdate.
	GraceMissingNextUpdate
)

// String returns the policy name used in configuration files.
func (p MissingNextUpdatePolicy) String() string {
	switch p {
	case AcceptMissingNextUpdate:
		return "accept"
	case RejectMissingNextUpdate:
		return "reject"
	case GraceMissingNextUpdate:
		return "grace"
	default:
		return fmt.Sprintf("unknown(%d)", p)
	}
}

// Verdict explains a verification outcome.
type Verdict int

const (
	VerdictGood Verdict = iota
	VerdictRevoked
	VerdictUnknown
	VerdictNotFresh
	VerdictNoMatch
)

// String returns a human-readable verdict.
func (v Verdict) String() string {
	switch v {
	case VerdictGood:
		return "good"
	case VerdictRevoked:
		return "revoked"
	case VerdictUnknown:
		return "unknown"
	case VerdictNotFresh:
		return "not fresh"
	case VerdictNoMatch:
		return "no matching response"
	default:
		return fmt.Sprintf("unknown(%d)", v)
	}
}

// Result contains the details behind a verification verdict.
type Result struct {
	// Verified is true only for a fresh Good status.
	Verified bool

	Verdict Verdict

	// CertStatus, times and revocation details come from the matching
	// SingleResponse; they are zero for VerdictNoMatch.
	CertStatus       CertStatus
	RevocationTime   time.Time
	RevocationReason RevocationReason
	ThisUpdate       time.Time
	NextUpdate       time.Time

	ProducedAt time.Time

	// Responder is the certificate whose key signed the response.
	Responder *x509.Certificate

	// Delegated is true when Responder is not the issuer itself.
	Delegated bool

	SerialNumber *big.Int
}

// Verifier checks archived OCSP responses at a given point in time.
// The zero value accepts responses without nextUpdate and allows no clock
// skew. A Verifier is safe for concurrent use.
type Verifier struct {
	MissingNextUpdate MissingNextUpdatePolicy

	// Grace is the validity granted to responses without nextUpdate under
	// GraceMissingNextUpdate.
	Grace time.Duration

	// ClockSkew widens the [thisUpdate, nextUpdate] window on both ends.
	ClockSkew time.Duration
}

// NewVerifier returns a Verifier with the default policy.
func NewVerifier() *Verifier {
	return &Verifier{}
}

// Verify reports whether response proves that checked, issued by issuer,
// was not revoked at the given time.
//
// false with a nil error is a legitimate negative answer: revoked, unknown,
// stale, or no SingleResponse about checked. An error means the response
// cannot be trusted: bad signature, unauthorized or expired responder,
// malformed or unsuccessful response.
func (v *Verifier) Verify(response []byte, checked, issuer *x509.Certificate, at time.Time) (bool, error) {
	result, err := v.VerifyDetailed(response, checked, issuer, at)
	if err != nil {
		return false, err
	}
	return result.Verified, nil
}

// VerifyDetailed is Verify returning the full Result.
func (v *Verifier) VerifyDetailed(response []byte, checked, issuer *x509.Certificate, at time.Time) (*Result, error) {
	if checked == nil || issuer == nil {
		return nil, &VerifyError{Op: "verify", Err: errors.New("checked and issuer certificates are required")}
	}

	basic, err := ParseBasicResponse(response)
	if err != nil {
		return nil, err
	}

	responder, delegated, err := v.responder(basic, issuer, at)
	if err != nil {
		return nil, err
	}

	pub, err := pkicrypto.PublicKey(responder)
	if err != nil {
		return nil, &VerifyError{Op: "signature", Err: fmt.Errorf("%w: responder key: %v", ErrInvalidSignature, err)}
	}
	if err := pkicrypto.VerifySignature(pub, basic.SignatureAlgorithm, 0,
		basic.TBSResponseData.Raw, basic.Signature.RightAlign()); err != nil {
		return nil, &VerifyError{Op: "signature", Err: fmt.Errorf("%w: %v", ErrInvalidSignature, err)}
	}

	result := &Result{
		Verdict:      VerdictNoMatch,
		ProducedAt:   basic.TBSResponseData.ProducedAt,
		Responder:    responder,
		Delegated:    delegated,
		SerialNumber: checked.SerialNumber,
	}

	single := findSingleResponse(basic.TBSResponseData.Responses, checked, issuer)
	if single == nil {
		return result, nil
	}

	status, revoked, err := single.Status()
	if err != nil {
		return nil, &VerifyError{Op: "parse", Err: err}
	}
	result.CertStatus = status
	result.ThisUpdate = single.ThisUpdate
	result.NextUpdate = single.NextUpdate
	if revoked != nil {
		result.RevocationTime = revoked.RevocationTime
		result.RevocationReason = RevocationReason(revoked.RevocationReason)
	}

	if !v.fresh(single, at) {
		result.Verdict = VerdictNotFresh
		return result, nil
	}

	switch status {
	case CertStatusGood:
		result.Verdict = VerdictGood
		result.Verified = true
	case CertStatusRevoked:
		result.Verdict = VerdictRevoked
	default:
		result.Verdict = VerdictUnknown
	}
	return result, nil
}

// responder resolves the certificate that signed the response. The issuer
// itself is accepted when the responder ID names it; otherwise an embedded
// certificate matching the responder ID must be signed by the issuer, carry
// id-kp-OCSPSigning and be valid at the check time (RFC 6960 §4.2.2.2).
func (v *Verifier) responder(basic *BasicOCSPResponse, issuer *x509.Certificate, at time.Time) (*x509.Certificate, bool, error) {
	rid := basic.TBSResponseData.ResponderID
	if responderIDMatches(rid, issuer) {
		return issuer, false, nil
	}

	certs, err := basic.Certificates()
	if err != nil {
		return nil, false, err
	}

	var delegate *x509.Certificate
	for _, cert := range certs {
		if bytes.Equal(cert.Raw, issuer.Raw) {
			continue
		}
		if responderIDMatches(rid, cert) {
			delegate = cert
			break
		}
	}
	if delegate == nil {
		return nil, false, &VerifyError{Op: "responder", Err: fmt.Errorf("%w: responder ID matches neither the issuer nor an embedded certificate", ErrResponderUnauthorized)}
	}

	if err := pkicrypto.CheckSignedBy(delegate.Raw, issuer); err != nil {
		return nil, false, &VerifyError{Op: "responder", Err: fmt.Errorf("%w: responder certificate not issued by the CA: %v", ErrResponderUnauthorized, err)}
	}
	if !x509util.HasOCSPSigning(delegate) {
		return nil, false, &VerifyError{Op: "responder", Err: fmt.Errorf("%w: responder certificate does not have id-kp-OCSPSigning EKU", ErrResponderUnauthorized)}
	}
	if err := x509util.CheckValidityAt(delegate, at); err != nil {
		return nil, false, &VerifyError{Op: "responder", Err: err}
	}
	return delegate, true, nil
}

// responderIDMatches compares a ResponderID CHOICE with a certificate:
// byName [1] against the raw subject, byKey [2] against the SHA-1 hash of
// the subjectPublicKey contents.
func responderIDMatches(rid asn1.RawValue, cert *x509.Certificate) bool {
	if rid.Class != asn1.ClassContextSpecific {
		return false
	}
	switch rid.Tag {
	case 1:
		return bytes.Equal(rid.Bytes, cert.RawSubject)
	case 2:
		var keyHash []byte
		if _, err := asn1.Unmarshal(rid.Bytes, &keyHash); err != nil {
			return false
		}
		bits, err := x509util.PublicKeyBits(cert)
		if err != nil {
			return false
		}
		sum := sha1.Sum(bits)
		return bytes.Equal(keyHash, sum[:])
	default:
		return false
	}
}

// findSingleResponse returns the first SingleResponse about checked.
func findSingleResponse(responses []SingleResponse, checked, issuer *x509.Certificate) *SingleResponse {
	for i := range responses {
		if responses[i].CertID.MatchesCertID(issuer, checked.SerialNumber) {
			return &responses[i]
		}
	}
	return nil
}

// fresh checks at against [thisUpdate, nextUpdate], widened by ClockSkew.
func (v *Verifier) fresh(single *SingleResponse, at time.Time) bool {
	if at.Before(single.ThisUpdate.Add(-v.ClockSkew)) {
		return false
	}
	if single.NextUpdate.IsZero() {
		switch v.MissingNextUpdate {
		case RejectMissingNextUpdate:
			return false
		case GraceMissingNextUpdate:
			return !at.After(single.ThisUpdate.Add(v.Grace + v.ClockSkew))
		default:
			return true
		}
	}
	return !at.After(single.NextUpdate.Add(v.ClockSkew))
}
