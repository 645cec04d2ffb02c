package x509util

import (
	"crypto"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
)

// HasOCSPSigning reports whether the certificate carries id-kp-OCSPSigning.
// Both parsed and unrecognized EKU entries are inspected.
func HasOCSPSigning(cert *x509.Certificate) bool {
	for _, eku := range cert.ExtKeyUsage {
		if eku == x509.ExtKeyUsageOCSPSigning {
			return true
		}
	}
	for _, oid := range cert.UnknownExtKeyUsage {
		if oid.Equal(OIDExtKeyUsageOCSPSigning) {
			return true
		}
	}
	return false
}

// HasOCSPNoCheck reports whether the certificate carries id-pkix-ocsp-nocheck.
func HasOCSPNoCheck(cert *x509.Certificate) bool {
	return FindExtension(cert.Extensions, OIDOCSPNoCheck) != nil
}

// FindExtension returns the extension with the given OID, or nil.
func FindExtension(extensions []pkix.Extension, oid asn1.ObjectIdentifier) *pkix.Extension {
	for i := range extensions {
		if extensions[i].Id.Equal(oid) {
			return &extensions[i]
		}
	}
	return nil
}

// SubjectKeyID returns the value of the certificate's subjectKeyIdentifier
// extension, or nil when it has none.
func SubjectKeyID(cert *x509.Certificate) []byte {
	if len(cert.SubjectKeyId) > 0 {
		return cert.SubjectKeyId
	}
	ext := FindExtension(cert.Extensions, OIDExtSubjectKeyId)
	if ext == nil {
		return nil
	}
	var ski []byte
	if _, err := asn1.Unmarshal(ext.Value, &ski); err != nil {
		return nil
	}
	return ski
}

// PublicKeyBits returns the subjectPublicKey BIT STRING contents of the
// certificate, the input of OCSP issuerKeyHash and byKey responder IDs.
func PublicKeyBits(cert *x509.Certificate) ([]byte, error) {
	var spki struct {
		Algorithm pkix.AlgorithmIdentifier
		PublicKey asn1.BitString
	}
	if _, err := asn1.Unmarshal(cert.RawSubjectPublicKeyInfo, &spki); err != nil {
		return nil, fmt.Errorf("failed to parse SubjectPublicKeyInfo: %w", err)
	}
	return spki.PublicKey.Bytes, nil
}

// PublicKeyHash hashes the subjectPublicKey BIT STRING contents.
func PublicKeyHash(cert *x509.Certificate, h crypto.Hash) ([]byte, error) {
	bits, err := PublicKeyBits(cert)
	if err != nil {
		return nil, err
	}
	if !h.Available() {
		return nil, fmt.Errorf("hash %v not available", h)
	}
	hh := h.New()
	hh.Write(bits)
	return hh.Sum(nil), nil
}
