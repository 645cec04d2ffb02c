package cms

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"fmt"

	pkicrypto "github.com/remiblancher/sigevidence/pkg/crypto"
)

// Sign serializes the signed attributes (freezing the SignerInfo), signs
// them with signer and installs the signature value. When no signature
// algorithm is set, one is derived from the signer's public key and the
// digest algorithm.
func (si *SignerInfo) Sign(signer crypto.Signer) error {
	const op = "sign"
	if len(si.digestAlgorithm.Algorithm) == 0 {
		return NewCMSError(op, fmt.Errorf("%w: digest algorithm not set", ErrIncomplete))
	}
	digestAlg, err := pkicrypto.HashForOID(si.digestAlgorithm.Algorithm)
	if err != nil {
		return NewCMSError(op, err)
	}
	if len(si.signatureAlgorithm.Algorithm) == 0 {
		alg, err := pkicrypto.SignatureAlgorithmFor(signer.Public(), digestAlg)
		if err != nil {
			return NewCMSError(op, err)
		}
		si.signatureAlgorithm = alg
	}

	signedAttrs, err := si.SerializeSignedAttributes()
	if err != nil {
		return err
	}
	sig, err := pkicrypto.SignMessage(signer, si.signatureAlgorithm, digestAlg, signedAttrs)
	if err != nil {
		return NewCMSError(op, err)
	}
	si.signature = sig
	return nil
}

// VerifySignature checks the signature value over the captured signed
// attributes with the public key of cert, or of the signing certificate
// when cert is nil.
func (si *SignerInfo) VerifySignature(cert *x509.Certificate) error {
	const op = "verify"
	if cert == nil {
		cert = si.signingCert
	}
	if cert == nil {
		return NewCMSError(op, ErrCertificateNotFound)
	}
	if !si.IsFrozen() || si.signedAttrs.Len() == 0 {
		return NewCMSError(op, fmt.Errorf("%w: no signed attributes", ErrMissingAttribute))
	}
	if si.signature == nil {
		return NewCMSError(op, ErrNoSignature)
	}
	digestAlg, err := pkicrypto.HashForOID(si.digestAlgorithm.Algorithm)
	if err != nil {
		return NewCMSError(op, err)
	}
	pub, err := pkicrypto.PublicKey(cert)
	if err != nil {
		return NewCMSError(op, err)
	}
	if err := pkicrypto.VerifySignature(pub, si.signatureAlgorithm, digestAlg, si.serializedSignedAttrs, si.signature); err != nil {
		return NewCMSError(op, fmt.Errorf("%w: %v", ErrInvalidSignature, err))
	}
	return nil
}

// VerifyContentDigest checks the messageDigest attribute against content.
func (si *SignerInfo) VerifyContentDigest(content []byte) error {
	const op = "verify"
	want, err := si.MessageDigest()
	if err != nil {
		return NewCMSError(op, err)
	}
	got, err := pkicrypto.DigestOID(si.digestAlgorithm.Algorithm, content)
	if err != nil {
		return NewCMSError(op, err)
	}
	if !bytes.Equal(got, want) {
		return NewCMSError(op, ErrDigestMismatch)
	}
	return nil
}
