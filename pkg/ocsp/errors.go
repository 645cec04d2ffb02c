package ocsp

import (
	"errors"
	"fmt"

	"github.com/remiblancher/sigevidence/pkg/x509util"
)

// VerifyError represents an OCSP verification error with structured context.
// It supports errors.Is() and errors.As().
type VerifyError struct {
	Op  string // Operation: "parse", "responder", "signature"
	Err error  // Underlying error
}

// Error implements the error interface.
func (e *VerifyError) Error() string {
	return fmt.Sprintf("ocsp %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *VerifyError) Unwrap() error { return e.Err }

// Sentinel errors for OCSP verification. A false verdict is not an error;
// these mean the response itself cannot be trusted or read.
var (
	// ErrInvalidSignature indicates the response signature does not verify.
	ErrInvalidSignature = errors.New("invalid OCSP response signature")

	// ErrResponderUnauthorized indicates the responder is neither the issuer
	// nor a delegated responder certified by it.
	ErrResponderUnauthorized = errors.New("unauthorized OCSP responder")

	// ErrMalformedResponse indicates DER that is not an OCSP response.
	ErrMalformedResponse = errors.New("malformed OCSP response")

	// ErrUnsuccessfulResponse indicates a responseStatus other than successful.
	ErrUnsuccessfulResponse = errors.New("unsuccessful OCSP response")

	// ErrCertificateExpired is returned when the delegated responder
	// certificate has expired at the check time.
	ErrCertificateExpired = x509util.ErrCertificateExpired

	// ErrCertificateNotYetValid is returned when the delegated responder
	// certificate is not yet valid at the check time.
	ErrCertificateNotYetValid = x509util.ErrCertificateNotYetValid
)
