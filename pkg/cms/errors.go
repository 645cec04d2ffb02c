// Package cms builds, serializes and parses CMS SignerInfo structures
// (RFC 5652 section 5.3) for embedded document signatures, including the
// ESS signing-certificate binding and archived revocation evidence.
package cms

import (
	"errors"
	"fmt"

	pkicrypto "github.com/remiblancher/sigevidence/pkg/crypto"
)

// CMSError represents a CMS operation error with structured context.
// It supports errors.Is() and errors.As() for improved error handling.
type CMSError struct {
	Op  string // Operation: "set digest algorithm", "serialize", "parse", "sign", ...
	Err error  // Underlying error
}

// Error implements the error interface.
func (e *CMSError) Error() string {
	return fmt.Sprintf("cms %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CMSError) Unwrap() error { return e.Err }

// NewCMSError creates a new CMSError with the given operation and error.
func NewCMSError(op string, err error) *CMSError {
	return &CMSError{Op: op, Err: err}
}

// Sentinel errors for CMS operations.
// Use errors.Is() to check for these errors through the error chain.
var (
	// ErrFrozen indicates a mutation of signed content after the signed
	// attributes were serialized.
	ErrFrozen = errors.New("illegal operation on frozen signer info")

	// ErrDuplicateAttribute indicates an attribute type already present in the set.
	ErrDuplicateAttribute = errors.New("duplicate attribute type")

	// ErrInvalidContainerStructure indicates DER that does not have the
	// expected tags or shape.
	ErrInvalidContainerStructure = errors.New("invalid container structure")

	// ErrCertificateNotFound indicates no candidate certificate matches the
	// signer identifier.
	ErrCertificateNotFound = errors.New("signing certificate not found")

	// ErrUnsupportedAlgorithm indicates an unsupported cryptographic algorithm.
	ErrUnsupportedAlgorithm = pkicrypto.ErrUnsupportedAlgorithm

	// ErrIncomplete indicates a SignerInfo that lacks a field required for
	// serialization (signing certificate, digest or signature algorithm).
	ErrIncomplete = errors.New("incomplete signer info")

	// ErrNoSignature indicates a serialization with signature that has no
	// signature value.
	ErrNoSignature = errors.New("no signature value")

	// ErrInvalidSignature indicates signature verification failed.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrMissingAttribute indicates a required signed attribute is missing.
	ErrMissingAttribute = errors.New("missing signed attribute")

	// ErrDigestMismatch indicates the messageDigest attribute does not match the content.
	ErrDigestMismatch = errors.New("message digest mismatch")
)
