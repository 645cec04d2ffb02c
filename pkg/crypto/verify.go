package crypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"

	"github.com/cloudflare/circl/sign/ed448"
	"github.com/cloudflare/circl/sign/mldsa/mldsa44"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"github.com/cloudflare/circl/sign/mldsa/mldsa87"
)

// ErrVerification is returned when a signature does not verify.
var ErrVerification = errors.New("signature verification failed")

// VerifySignature checks signature over message with pub. digestAlg is only
// consulted for signature OIDs that do not bind a digest.
func VerifySignature(pub crypto.PublicKey, sigAlg pkix.AlgorithmIdentifier, digestAlg crypto.Hash, message, signature []byte) error {
	info, ok := signatureAlgorithms[sigAlg.Algorithm.String()]
	if !ok {
		return fmt.Errorf("%w: signature %s", ErrUnsupportedAlgorithm, sigAlg.Algorithm)
	}

	var valid bool
	switch info.Alg {
	case AlgRSA, AlgRSAPSS, AlgECDSA:
		h, err := signatureHash(sigAlg, info, digestAlg)
		if err != nil {
			return err
		}
		digest, err := Digest(h, message)
		if err != nil {
			return err
		}
		switch info.Alg {
		case AlgRSA:
			rsaPub, ok := pub.(*rsa.PublicKey)
			if !ok {
				return keyMismatch(info.Alg, pub)
			}
			valid = rsa.VerifyPKCS1v15(rsaPub, h, digest, signature) == nil
		case AlgRSAPSS:
			rsaPub, ok := pub.(*rsa.PublicKey)
			if !ok {
				return keyMismatch(info.Alg, pub)
			}
			valid = rsa.VerifyPSS(rsaPub, h, digest, signature, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto, Hash: h}) == nil
		default:
			ecPub, ok := pub.(*ecdsa.PublicKey)
			if !ok {
				return keyMismatch(info.Alg, pub)
			}
			valid = ecdsa.VerifyASN1(ecPub, digest, signature)
		}

	case AlgEd25519:
		edPub, ok := pub.(ed25519.PublicKey)
		if !ok {
			return keyMismatch(info.Alg, pub)
		}
		valid = ed25519.Verify(edPub, message, signature)

	case AlgEd448:
		edPub, ok := pub.(ed448.PublicKey)
		if !ok {
			return keyMismatch(info.Alg, pub)
		}
		valid = ed448.Verify(edPub, message, signature, "")

	case AlgMLDSA44:
		mlPub, ok := pub.(*mldsa44.PublicKey)
		if !ok {
			return keyMismatch(info.Alg, pub)
		}
		valid = mldsa44.Verify(mlPub, message, nil, signature)

	case AlgMLDSA65:
		mlPub, ok := pub.(*mldsa65.PublicKey)
		if !ok {
			return keyMismatch(info.Alg, pub)
		}
		valid = mldsa65.Verify(mlPub, message, nil, signature)

	case AlgMLDSA87:
		mlPub, ok := pub.(*mldsa87.PublicKey)
		if !ok {
			return keyMismatch(info.Alg, pub)
		}
		valid = mldsa87.Verify(mlPub, message, nil, signature)
	}

	if !valid {
		return fmt.Errorf("%w: %s", ErrVerification, info.Alg)
	}
	return nil
}

func keyMismatch(alg AlgorithmID, pub crypto.PublicKey) error {
	return fmt.Errorf("%w: %s signature with %T key", ErrVerification, alg, pub)
}

// signedEnvelope is the common outer shape of certificates, CRLs and OCSP
// responses: SEQUENCE { tbs, signatureAlgorithm, signature BIT STRING }.
type signedEnvelope struct {
	TBS       asn1.RawValue
	Algorithm pkix.AlgorithmIdentifier
	Signature asn1.BitString
}

// SplitSigned returns the to-be-signed bytes, algorithm and signature value
// of a signed X.509 structure.
func SplitSigned(der []byte) (tbs []byte, alg pkix.AlgorithmIdentifier, sig []byte, err error) {
	var env signedEnvelope
	rest, err := asn1.Unmarshal(der, &env)
	if err != nil {
		return nil, pkix.AlgorithmIdentifier{}, nil, fmt.Errorf("failed to parse signed structure: %w", err)
	}
	if len(rest) > 0 {
		return nil, pkix.AlgorithmIdentifier{}, nil, fmt.Errorf("trailing data after signed structure")
	}
	return env.TBS.FullBytes, env.Algorithm, env.Signature.RightAlign(), nil
}

// CheckSignedBy verifies that a signed X.509 structure (certificate or CRL)
// was signed by the key of parent. Only the signature is checked; CA flags
// and key usage are left to the caller.
func CheckSignedBy(der []byte, parent *x509.Certificate) error {
	tbs, alg, sig, err := SplitSigned(der)
	if err != nil {
		return err
	}
	pub, err := PublicKey(parent)
	if err != nil {
		return err
	}
	return VerifySignature(pub, alg, 0, tbs, sig)
}
