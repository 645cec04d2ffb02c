package crypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"io"

	"github.com/cloudflare/circl/sign/ed448"
	"github.com/cloudflare/circl/sign/mldsa/mldsa44"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"github.com/cloudflare/circl/sign/mldsa/mldsa87"
)

// Signer is the signing capability handed to the CMS layer. It is a plain
// crypto.Signer: software keys, ML-DSA keys from circl and HSM-backed keys
// all satisfy it.
type Signer = crypto.Signer

// pssParameters is RSASSA-PSS-params (RFC 4055).
type pssParameters struct {
	Hash         pkix.AlgorithmIdentifier `asn1:"explicit,tag:0,optional"`
	MGF          pkix.AlgorithmIdentifier `asn1:"explicit,tag:1,optional"`
	SaltLength   int                      `asn1:"explicit,tag:2,optional,default:20"`
	TrailerField int                      `asn1:"explicit,tag:3,optional,default:1"`
}

// SignatureAlgorithmFor returns the signature AlgorithmIdentifier matching a
// public key and a digest algorithm.
func SignatureAlgorithmFor(pub crypto.PublicKey, digest crypto.Hash) (pkix.AlgorithmIdentifier, error) {
	switch pub.(type) {
	case *rsa.PublicKey:
		var oid asn1.ObjectIdentifier
		switch digest {
		case crypto.SHA1:
			oid = OIDSHA1WithRSA
		case crypto.SHA224:
			oid = OIDSHA224WithRSA
		case crypto.SHA256:
			oid = OIDSHA256WithRSA
		case crypto.SHA384:
			oid = OIDSHA384WithRSA
		case crypto.SHA512:
			oid = OIDSHA512WithRSA
		default:
			return pkix.AlgorithmIdentifier{}, fmt.Errorf("%w: RSA with %v", ErrUnsupportedAlgorithm, digest)
		}
		return pkix.AlgorithmIdentifier{Algorithm: oid, Parameters: asn1.NullRawValue}, nil
	case *ecdsa.PublicKey:
		var oid asn1.ObjectIdentifier
		switch digest {
		case crypto.SHA1:
			oid = OIDECDSAWithSHA1
		case crypto.SHA224:
			oid = OIDECDSAWithSHA224
		case crypto.SHA256:
			oid = OIDECDSAWithSHA256
		case crypto.SHA384:
			oid = OIDECDSAWithSHA384
		case crypto.SHA512:
			oid = OIDECDSAWithSHA512
		default:
			return pkix.AlgorithmIdentifier{}, fmt.Errorf("%w: ECDSA with %v", ErrUnsupportedAlgorithm, digest)
		}
		return pkix.AlgorithmIdentifier{Algorithm: oid}, nil
	case ed25519.PublicKey:
		return pkix.AlgorithmIdentifier{Algorithm: OIDEd25519}, nil
	case ed448.PublicKey:
		return pkix.AlgorithmIdentifier{Algorithm: OIDEd448}, nil
	case *mldsa44.PublicKey:
		return pkix.AlgorithmIdentifier{Algorithm: OIDMLDSA44}, nil
	case *mldsa65.PublicKey:
		return pkix.AlgorithmIdentifier{Algorithm: OIDMLDSA65}, nil
	case *mldsa87.PublicKey:
		return pkix.AlgorithmIdentifier{Algorithm: OIDMLDSA87}, nil
	default:
		return pkix.AlgorithmIdentifier{}, fmt.Errorf("%w: public key %T", ErrUnsupportedAlgorithm, pub)
	}
}

// PSSAlgorithmIdentifier returns an RSASSA-PSS AlgorithmIdentifier with MGF1
// and a salt as long as the digest.
func PSSAlgorithmIdentifier(digest crypto.Hash) (pkix.AlgorithmIdentifier, error) {
	hashOID, err := OIDForHash(digest)
	if err != nil {
		return pkix.AlgorithmIdentifier{}, err
	}
	hashAlg := pkix.AlgorithmIdentifier{Algorithm: hashOID, Parameters: asn1.NullRawValue}
	mgfParams, err := asn1.Marshal(hashAlg)
	if err != nil {
		return pkix.AlgorithmIdentifier{}, err
	}
	params, err := asn1.Marshal(pssParameters{
		Hash:         hashAlg,
		MGF:          pkix.AlgorithmIdentifier{Algorithm: OIDMGF1, Parameters: asn1.RawValue{FullBytes: mgfParams}},
		SaltLength:   digest.Size(),
		TrailerField: 1,
	})
	if err != nil {
		return pkix.AlgorithmIdentifier{}, err
	}
	return pkix.AlgorithmIdentifier{Algorithm: OIDRSASSAPSS, Parameters: asn1.RawValue{FullBytes: params}}, nil
}

// signatureHash resolves the digest used with a signature algorithm. OIDs
// that do not bind a digest fall back to the SignerInfo digest algorithm.
func signatureHash(sigAlg pkix.AlgorithmIdentifier, info signatureInfo, digestAlg crypto.Hash) (crypto.Hash, error) {
	if info.Hash != 0 {
		return info.Hash, nil
	}
	if info.Alg == AlgRSAPSS && len(sigAlg.Parameters.FullBytes) > 0 {
		var params pssParameters
		if _, err := asn1.Unmarshal(sigAlg.Parameters.FullBytes, &params); err != nil {
			return 0, fmt.Errorf("invalid RSASSA-PSS parameters: %w", err)
		}
		if len(params.Hash.Algorithm) == 0 {
			return crypto.SHA1, nil
		}
		return HashForOID(params.Hash.Algorithm)
	}
	if digestAlg == 0 {
		return 0, fmt.Errorf("%w: %s needs a digest algorithm", ErrUnsupportedAlgorithm, sigAlg.Algorithm)
	}
	return digestAlg, nil
}

// SignMessage signs message with signer according to sigAlg. Pure schemes
// (Ed25519, Ed448, ML-DSA) receive the message, the others its digest.
func SignMessage(signer Signer, sigAlg pkix.AlgorithmIdentifier, digestAlg crypto.Hash, message []byte) ([]byte, error) {
	return SignMessageWithRand(rand.Reader, signer, sigAlg, digestAlg, message)
}

// SignMessageWithRand is SignMessage with an explicit randomness source.
func SignMessageWithRand(random io.Reader, signer Signer, sigAlg pkix.AlgorithmIdentifier, digestAlg crypto.Hash, message []byte) ([]byte, error) {
	info, ok := signatureAlgorithms[sigAlg.Algorithm.String()]
	if !ok {
		return nil, fmt.Errorf("%w: signature %s", ErrUnsupportedAlgorithm, sigAlg.Algorithm)
	}
	if info.Alg.IsPure() {
		return signer.Sign(random, message, crypto.Hash(0))
	}

	h, err := signatureHash(sigAlg, info, digestAlg)
	if err != nil {
		return nil, err
	}
	digest, err := Digest(h, message)
	if err != nil {
		return nil, err
	}

	var opts crypto.SignerOpts = h
	if info.Alg == AlgRSAPSS {
		opts = &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: h}
	}
	return signer.Sign(random, digest, opts)
}
