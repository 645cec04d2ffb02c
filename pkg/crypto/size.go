package crypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/asn1"
	"fmt"

	"github.com/cloudflare/circl/sign/ed448"
	"github.com/cloudflare/circl/sign/mldsa/mldsa44"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"github.com/cloudflare/circl/sign/mldsa/mldsa87"
)

// MaxSignatureSize returns an upper bound on the length of a signature
// produced with sigAlg. When pub is non-nil the bound is derived from the key,
// otherwise from the algorithm alone.
func MaxSignatureSize(sigAlg asn1.ObjectIdentifier, pub crypto.PublicKey) (int, error) {
	if pub != nil {
		if n, ok := keySignatureSize(pub); ok {
			return n, nil
		}
	}
	info, ok := signatureAlgorithms[sigAlg.String()]
	if !ok {
		return 0, fmt.Errorf("%w: signature %s", ErrUnsupportedAlgorithm, sigAlg)
	}
	return info.MaxSize, nil
}

func keySignatureSize(pub crypto.PublicKey) (int, bool) {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return (k.N.BitLen() + 7) / 8, true
	case *ecdsa.PublicKey:
		return ecdsaMaxSignatureSize(k.Curve.Params().BitSize), true
	case ed25519.PublicKey:
		return ed25519.SignatureSize, true
	case ed448.PublicKey:
		return ed448.SignatureSize, true
	case *mldsa44.PublicKey:
		return mldsa44.SignatureSize, true
	case *mldsa65.PublicKey:
		return mldsa65.SignatureSize, true
	case *mldsa87.PublicKey:
		return mldsa87.SignatureSize, true
	}
	return 0, false
}

// ecdsaMaxSignatureSize bounds the DER length of ECDSA-Sig-Value
// SEQUENCE { r INTEGER, s INTEGER } for a curve of the given size.
func ecdsaMaxSignatureSize(bits int) int {
	n := (bits + 7) / 8
	// each INTEGER: tag, length, optional leading zero, value
	content := 2 * (n + 3)
	if content < 128 {
		return content + 2
	}
	return content + 3
}
