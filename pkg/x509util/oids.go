// Package x509util provides certificate helpers shared by the CMS and
// revocation code: time-validity checks, extension lookups and PEM loading.
package x509util

import (
	"encoding/asn1"
)

// Standard X.509 OIDs.
var (
	// Extended Key Usage extension
	OIDExtExtKeyUsage = asn1.ObjectIdentifier{2, 5, 29, 37}

	// Subject Key Identifier extension
	OIDExtSubjectKeyId = asn1.ObjectIdentifier{2, 5, 29, 14}
)

// Extended Key Usage OIDs.
var (
	OIDExtKeyUsageOCSPSigning = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 9}
)

// OCSP extensions (RFC 6960).
var (
	// id-pkix-ocsp-nocheck, carried by delegated responder certificates.
	OIDOCSPNoCheck = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 1, 5}
)
