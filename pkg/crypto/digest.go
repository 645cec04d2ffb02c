package crypto

import (
	"crypto"
	"crypto/sha1" //nolint:gosec // SHA-1 is still used by ESS signing-certificate v1 and OCSP CertID
	"crypto/sha256"
	"crypto/sha512"
	"encoding/asn1"
	"fmt"
	"hash"

	"golang.org/x/crypto/sha3"
)

// NewHash returns a fresh hash.Hash for the given algorithm.
func NewHash(alg crypto.Hash) (hash.Hash, error) {
	switch alg {
	case crypto.SHA1:
		return sha1.New(), nil //nolint:gosec
	case crypto.SHA224:
		return sha256.New224(), nil
	case crypto.SHA256:
		return sha256.New(), nil
	case crypto.SHA384:
		return sha512.New384(), nil
	case crypto.SHA512:
		return sha512.New(), nil
	case crypto.SHA3_256:
		return sha3.New256(), nil
	case crypto.SHA3_384:
		return sha3.New384(), nil
	case crypto.SHA3_512:
		return sha3.New512(), nil
	default:
		return nil, fmt.Errorf("%w: digest %v", ErrUnsupportedAlgorithm, alg)
	}
}

// Digest computes the digest of data.
func Digest(alg crypto.Hash, data []byte) ([]byte, error) {
	h, err := NewHash(alg)
	if err != nil {
		return nil, err
	}
	h.Write(data)
	return h.Sum(nil), nil
}

// DigestOID computes the digest of data with the algorithm named by a digest OID.
func DigestOID(oid asn1.ObjectIdentifier, data []byte) ([]byte, error) {
	alg, err := HashForOID(oid)
	if err != nil {
		return nil, err
	}
	return Digest(alg, data)
}
