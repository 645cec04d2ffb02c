package x509util

import (
	"crypto/x509"
	"errors"
	"fmt"
	"time"
)

// Time-validity errors. Callers match them with errors.Is.
var (
	// ErrCertificateExpired is returned when the check time is after notAfter.
	ErrCertificateExpired = errors.New("certificate expired")

	// ErrCertificateNotYetValid is returned when the check time is before notBefore.
	ErrCertificateNotYetValid = errors.New("certificate not yet valid")
)

// CheckValidityAt reports whether cert is within its validity period at t.
// Both bounds are inclusive, as in RFC 5280.
func CheckValidityAt(cert *x509.Certificate, t time.Time) error {
	if t.Before(cert.NotBefore) {
		return fmt.Errorf("%w: %s valid from %s, checked at %s", ErrCertificateNotYetValid,
			cert.Subject, cert.NotBefore.UTC().Format(time.RFC3339), t.UTC().Format(time.RFC3339))
	}
	if t.After(cert.NotAfter) {
		return fmt.Errorf("%w: %s valid until %s, checked at %s", ErrCertificateExpired,
			cert.Subject, cert.NotAfter.UTC().Format(time.RFC3339), t.UTC().Format(time.RFC3339))
	}
	return nil
}
