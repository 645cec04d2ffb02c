package ocsp

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"

	pkicrypto "github.com/remiblancher/sigevidence/pkg/crypto"
	"github.com/remiblancher/sigevidence/pkg/x509util"
)

// CertID identifies the certificate a SingleResponse speaks about.
// CertID ::= SEQUENCE {
//
//	hashAlgorithm       AlgorithmIdentifier,
//	issuerNameHash      OCTET STRING,
//	issuerKeyHash       OCTET STRING,
//	serialNumber        CertificateSerialNumber }
type CertID struct {
	HashAlgorithm  pkix.AlgorithmIdentifier
	IssuerNameHash []byte
	IssuerKeyHash  []byte
	SerialNumber   *big.Int
}

// NewCertID creates a CertID for a certificate issued by the given issuer.
func NewCertID(hashAlg crypto.Hash, issuer, cert *x509.Certificate) (*CertID, error) {
	return NewCertIDFromSerial(hashAlg, issuer, cert.SerialNumber)
}

// NewCertIDFromSerial creates a CertID for a serial number from the given issuer.
// issuerKeyHash covers the subjectPublicKey BIT STRING contents, as the
// subjectKeyIdentifier method 1 of RFC 5280 does.
func NewCertIDFromSerial(hashAlg crypto.Hash, issuer *x509.Certificate, serial *big.Int) (*CertID, error) {
	hashOID, err := pkicrypto.OIDForHash(hashAlg)
	if err != nil {
		return nil, err
	}
	nameHash, err := pkicrypto.Digest(hashAlg, issuer.RawSubject)
	if err != nil {
		return nil, err
	}
	bits, err := x509util.PublicKeyBits(issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to parse issuer key: %w", err)
	}
	keyHash, err := pkicrypto.Digest(hashAlg, bits)
	if err != nil {
		return nil, err
	}

	return &CertID{
		HashAlgorithm:  pkix.AlgorithmIdentifier{Algorithm: hashOID},
		IssuerNameHash: nameHash,
		IssuerKeyHash:  keyHash,
		SerialNumber:   serial,
	}, nil
}

// MatchesCertID checks if a CertID matches a certificate from the given issuer.
func (id *CertID) MatchesCertID(issuer *x509.Certificate, serial *big.Int) bool {
	return id.SerialNumber != nil && id.SerialNumber.Cmp(serial) == 0 && id.MatchesIssuer(issuer)
}

// MatchesIssuer checks if the CertID's issuer hashes match the given issuer.
// A CertID hashed with an algorithm outside the registry never matches.
func (id *CertID) MatchesIssuer(issuer *x509.Certificate) bool {
	hashAlg, err := pkicrypto.HashForOID(id.HashAlgorithm.Algorithm)
	if err != nil {
		return false
	}
	expected, err := NewCertIDFromSerial(hashAlg, issuer, big.NewInt(0))
	if err != nil {
		return false
	}
	return bytes.Equal(id.IssuerNameHash, expected.IssuerNameHash) &&
		bytes.Equal(id.IssuerKeyHash, expected.IssuerKeyHash)
}
