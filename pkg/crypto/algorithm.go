// Package crypto provides the algorithm registry used by the CMS signer-info
// and revocation-evidence code: digest and signature OIDs, digest computation,
// signing through crypto.Signer and signature verification by OID.
// Classical algorithms (RSA, ECDSA, Ed25519) use the standard library,
// Ed448 and ML-DSA use the cloudflare/circl library.
package crypto

import (
	"crypto"
	"encoding/asn1"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudflare/circl/sign/ed448"
	"github.com/cloudflare/circl/sign/mldsa/mldsa44"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"github.com/cloudflare/circl/sign/mldsa/mldsa87"
)

// ErrUnsupportedAlgorithm is returned for digest or signature OIDs that are
// not in the registry.
var ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")

// AlgorithmID identifies a signature algorithm family.
type AlgorithmID string

// Signature algorithm families.
const (
	AlgRSA     AlgorithmID = "rsa"
	AlgRSAPSS  AlgorithmID = "rsa-pss"
	AlgECDSA   AlgorithmID = "ecdsa"
	AlgEd25519 AlgorithmID = "ed25519"
	AlgEd448   AlgorithmID = "ed448"
	AlgMLDSA44 AlgorithmID = "ml-dsa-44"
	AlgMLDSA65 AlgorithmID = "ml-dsa-65"
	AlgMLDSA87 AlgorithmID = "ml-dsa-87"
)

// IsPure reports whether the algorithm signs the message itself rather than
// a digest computed by the caller.
func (a AlgorithmID) IsPure() bool {
	switch a {
	case AlgEd25519, AlgEd448, AlgMLDSA44, AlgMLDSA65, AlgMLDSA87:
		return true
	}
	return false
}

// Digest algorithm OIDs.
var (
	OIDSHA1     = asn1.ObjectIdentifier{1, 3, 14, 3, 2, 26}
	OIDSHA224   = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 4}
	OIDSHA256   = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
	OIDSHA384   = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 2}
	OIDSHA512   = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 3}
	OIDSHA3_256 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 8}
	OIDSHA3_384 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 9}
	OIDSHA3_512 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 10}
)

// Signature algorithm OIDs.
var (
	// rsaEncryption, used as a signature algorithm by many CMS producers.
	OIDRSAEncryption   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 1}
	OIDSHA1WithRSA     = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 5}
	OIDSHA224WithRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 14}
	OIDSHA256WithRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 11}
	OIDSHA384WithRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 12}
	OIDSHA512WithRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 13}
	OIDRSASSAPSS       = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 10}
	OIDMGF1            = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 8}
	OIDECPublicKey     = asn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1}
	OIDECDSAWithSHA1   = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 1}
	OIDECDSAWithSHA224 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 1}
	OIDECDSAWithSHA256 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 2}
	OIDECDSAWithSHA384 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 3}
	OIDECDSAWithSHA512 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 4}
	OIDEd25519         = asn1.ObjectIdentifier{1, 3, 101, 112}
	OIDEd448           = asn1.ObjectIdentifier{1, 3, 101, 113}
	OIDMLDSA44         = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 17}
	OIDMLDSA65         = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 18}
	OIDMLDSA87         = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 19}
)

// Worst-case signature lengths used when the signing key is not known.
const (
	// RSA placeholder assumes an 8192-bit modulus.
	maxRSASignatureSize = 1024
	// DER ECDSA-Sig-Value for P-521.
	maxECDSASignatureSize = 141
)

// signatureInfo holds metadata about a signature algorithm OID.
type signatureInfo struct {
	Alg AlgorithmID
	// Hash is the digest bound into the OID. Zero means the digest comes
	// from the SignerInfo digest algorithm (rsaEncryption, RSASSA-PSS,
	// ecPublicKey) or that the scheme is pure.
	Hash    crypto.Hash
	MaxSize int
}

// signatureAlgorithms maps signature OIDs to their metadata.
var signatureAlgorithms = map[string]signatureInfo{
	OIDRSAEncryption.String():   {Alg: AlgRSA, MaxSize: maxRSASignatureSize},
	OIDSHA1WithRSA.String():     {Alg: AlgRSA, Hash: crypto.SHA1, MaxSize: maxRSASignatureSize},
	OIDSHA224WithRSA.String():   {Alg: AlgRSA, Hash: crypto.SHA224, MaxSize: maxRSASignatureSize},
	OIDSHA256WithRSA.String():   {Alg: AlgRSA, Hash: crypto.SHA256, MaxSize: maxRSASignatureSize},
	OIDSHA384WithRSA.String():   {Alg: AlgRSA, Hash: crypto.SHA384, MaxSize: maxRSASignatureSize},
	OIDSHA512WithRSA.String():   {Alg: AlgRSA, Hash: crypto.SHA512, MaxSize: maxRSASignatureSize},
	OIDRSASSAPSS.String():       {Alg: AlgRSAPSS, MaxSize: maxRSASignatureSize},
	OIDECPublicKey.String():     {Alg: AlgECDSA, MaxSize: maxECDSASignatureSize},
	OIDECDSAWithSHA1.String():   {Alg: AlgECDSA, Hash: crypto.SHA1, MaxSize: maxECDSASignatureSize},
	OIDECDSAWithSHA224.String(): {Alg: AlgECDSA, Hash: crypto.SHA224, MaxSize: maxECDSASignatureSize},
	OIDECDSAWithSHA256.String(): {Alg: AlgECDSA, Hash: crypto.SHA256, MaxSize: maxECDSASignatureSize},
	OIDECDSAWithSHA384.String(): {Alg: AlgECDSA, Hash: crypto.SHA384, MaxSize: maxECDSASignatureSize},
	OIDECDSAWithSHA512.String(): {Alg: AlgECDSA, Hash: crypto.SHA512, MaxSize: maxECDSASignatureSize},
	OIDEd25519.String():         {Alg: AlgEd25519, MaxSize: 64},
	OIDEd448.String():           {Alg: AlgEd448, MaxSize: ed448.SignatureSize},
	OIDMLDSA44.String():         {Alg: AlgMLDSA44, MaxSize: mldsa44.SignatureSize},
	OIDMLDSA65.String():         {Alg: AlgMLDSA65, MaxSize: mldsa65.SignatureSize},
	OIDMLDSA87.String():         {Alg: AlgMLDSA87, MaxSize: mldsa87.SignatureSize},
}

// digestAlgorithms maps digest OIDs to crypto.Hash values.
var digestAlgorithms = map[string]crypto.Hash{
	OIDSHA1.String():     crypto.SHA1,
	OIDSHA224.String():   crypto.SHA224,
	OIDSHA256.String():   crypto.SHA256,
	OIDSHA384.String():   crypto.SHA384,
	OIDSHA512.String():   crypto.SHA512,
	OIDSHA3_256.String(): crypto.SHA3_256,
	OIDSHA3_384.String(): crypto.SHA3_384,
	OIDSHA3_512.String(): crypto.SHA3_512,
}

// SignatureAlgorithm returns the algorithm family for a signature OID.
func SignatureAlgorithm(oid asn1.ObjectIdentifier) (AlgorithmID, error) {
	info, ok := signatureAlgorithms[oid.String()]
	if !ok {
		return "", fmt.Errorf("%w: signature %s", ErrUnsupportedAlgorithm, oid)
	}
	return info.Alg, nil
}

// HashForOID returns the hash function for a digest algorithm OID.
func HashForOID(oid asn1.ObjectIdentifier) (crypto.Hash, error) {
	h, ok := digestAlgorithms[oid.String()]
	if !ok {
		return 0, fmt.Errorf("%w: digest %s", ErrUnsupportedAlgorithm, oid)
	}
	return h, nil
}

// OIDForHash returns the digest algorithm OID for a hash function.
func OIDForHash(h crypto.Hash) (asn1.ObjectIdentifier, error) {
	for oid, hash := range digestAlgorithms {
		if hash == h {
			return ParseOID(oid)
		}
	}
	return nil, fmt.Errorf("%w: hash %v", ErrUnsupportedAlgorithm, h)
}

// ParseOID parses a dotted-decimal object identifier.
func ParseOID(s string) (asn1.ObjectIdentifier, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid OID %q", s)
	}
	oid := make(asn1.ObjectIdentifier, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid OID %q", s)
		}
		oid[i] = n
	}
	return oid, nil
}

// HashByName resolves a user-facing digest name such as "sha256" or
// "SHA3-512".
func HashByName(name string) (crypto.Hash, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "_", "-")) {
	case "sha1", "sha-1":
		return crypto.SHA1, nil
	case "sha224", "sha-224":
		return crypto.SHA224, nil
	case "sha256", "sha-256":
		return crypto.SHA256, nil
	case "sha384", "sha-384":
		return crypto.SHA384, nil
	case "sha512", "sha-512":
		return crypto.SHA512, nil
	case "sha3-256":
		return crypto.SHA3_256, nil
	case "sha3-384":
		return crypto.SHA3_384, nil
	case "sha3-512":
		return crypto.SHA3_512, nil
	default:
		return 0, fmt.Errorf("%w: hash %q", ErrUnsupportedAlgorithm, name)
	}
}
