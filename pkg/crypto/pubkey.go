package crypto

import (
	"crypto"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"

	"github.com/cloudflare/circl/sign/ed448"
	"github.com/cloudflare/circl/sign/mldsa/mldsa44"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"github.com/cloudflare/circl/sign/mldsa/mldsa87"
)

// PublicKey returns the certificate's public key. Keys the standard library
// leaves unparsed (Ed448, ML-DSA) are decoded from the SubjectPublicKeyInfo.
func PublicKey(cert *x509.Certificate) (crypto.PublicKey, error) {
	if cert == nil {
		return nil, fmt.Errorf("certificate is nil")
	}
	if cert.PublicKey != nil {
		return cert.PublicKey, nil
	}
	return ParsePublicKey(cert.RawSubjectPublicKeyInfo)
}

// ParsePublicKey decodes a DER SubjectPublicKeyInfo.
func ParsePublicKey(spkiDER []byte) (crypto.PublicKey, error) {
	var spki struct {
		Algorithm pkix.AlgorithmIdentifier
		PublicKey asn1.BitString
	}
	if _, err := asn1.Unmarshal(spkiDER, &spki); err != nil {
		return nil, fmt.Errorf("failed to parse SubjectPublicKeyInfo: %w", err)
	}
	keyBytes := spki.PublicKey.RightAlign()

	switch {
	case spki.Algorithm.Algorithm.Equal(OIDEd448):
		if len(keyBytes) != ed448.PublicKeySize {
			return nil, fmt.Errorf("invalid Ed448 public key length: %d", len(keyBytes))
		}
		return ed448.PublicKey(keyBytes), nil
	case spki.Algorithm.Algorithm.Equal(OIDMLDSA44):
		pub := new(mldsa44.PublicKey)
		if err := pub.UnmarshalBinary(keyBytes); err != nil {
			return nil, fmt.Errorf("failed to parse ML-DSA-44 public key: %w", err)
		}
		return pub, nil
	case spki.Algorithm.Algorithm.Equal(OIDMLDSA65):
		pub := new(mldsa65.PublicKey)
		if err := pub.UnmarshalBinary(keyBytes); err != nil {
			return nil, fmt.Errorf("failed to parse ML-DSA-65 public key: %w", err)
		}
		return pub, nil
	case spki.Algorithm.Algorithm.Equal(OIDMLDSA87):
		pub := new(mldsa87.PublicKey)
		if err := pub.UnmarshalBinary(keyBytes); err != nil {
			return nil, fmt.Errorf("failed to parse ML-DSA-87 public key: %w", err)
		}
		return pub, nil
	}

	pub, err := x509.ParsePKIXPublicKey(spkiDER)
	if err != nil {
		return nil, fmt.Errorf("%w: public key %s", ErrUnsupportedAlgorithm, spki.Algorithm.Algorithm)
	}
	return pub, nil
}
