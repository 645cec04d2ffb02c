package cms

import "encoding/asn1"

// Signed attributes (RFC 5652, PKCS#9)
var (
	OIDContentType   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 3}
	OIDMessageDigest = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 4}
	OIDSigningTime   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 5}
)

// Content types
var (
	OIDData = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1}
)

// Signing certificate attributes (RFC 2634, RFC 5035)
var (
	OIDSigningCertificate   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 12}
	OIDSigningCertificateV2 = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 47}
)

// Unsigned attributes
var (
	// id-aa-signatureTimeStampToken (RFC 3161 appendix A)
	OIDSignatureTimeStampToken = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 14}
)

// OIDRevocationInfoArchival is adbe-revocationInfoArchival, the signed
// attribute that archives CRLs and OCSP responses inside PDF signatures.
var OIDRevocationInfoArchival = asn1.ObjectIdentifier{1, 2, 840, 113583, 1, 1, 8}

// oidOCSPBasic is id-pkix-ocsp-basic, used to wrap bare BasicOCSPResponses.
var oidOCSPBasic = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 1, 1}
