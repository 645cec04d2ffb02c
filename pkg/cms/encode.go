package cms

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"

	pkicrypto "github.com/remiblancher/sigevidence/pkg/crypto"
)

// Bytes returns the DER encoding of the SignerInfo. With includeSignature
// the real signature value is written, otherwise a zero-filled placeholder
// of the worst-case signature length. Serializing captures the signed
// attributes, so the SignerInfo is frozen afterwards.
func (si *SignerInfo) Bytes(includeSignature bool) ([]byte, error) {
	if err := si.checkComplete(); err != nil {
		return nil, NewCMSError("serialize", err)
	}
	signedAttrs, err := si.SerializeSignedAttributes()
	if err != nil {
		return nil, err
	}

	var sig []byte
	if includeSignature {
		if si.signature == nil {
			return nil, NewCMSError("serialize", ErrNoSignature)
		}
		sig = si.signature
	} else {
		n, err := si.placeholderLength()
		if err != nil {
			return nil, NewCMSError("serialize", err)
		}
		sig = make([]byte, n)
	}

	der, err := si.encode(signedAttrs, sig)
	if err != nil {
		return nil, NewCMSError("serialize", err)
	}
	return der, nil
}

// EstimatedSize returns the length of the DER encoding with the placeholder
// signature, or with the real signature once one is set. It does not freeze
// the SignerInfo.
func (si *SignerInfo) EstimatedSize() (int, error) {
	if err := si.checkComplete(); err != nil {
		return 0, NewCMSError("estimate size", err)
	}

	signedAttrs := si.serializedSignedAttrs
	if !si.IsFrozen() {
		var err error
		if signedAttrs, err = si.signedAttrs.Encode(); err != nil {
			return 0, NewCMSError("estimate size", err)
		}
	}

	sig := si.signature
	if sig == nil {
		n, err := si.placeholderLength()
		if err != nil {
			return 0, NewCMSError("estimate size", err)
		}
		sig = make([]byte, n)
	}

	der, err := si.encode(signedAttrs, sig)
	if err != nil {
		return 0, NewCMSError("estimate size", err)
	}
	return len(der), nil
}

func (si *SignerInfo) checkComplete() error {
	switch {
	case si.sid == nil:
		return fmt.Errorf("%w: signing certificate not set", ErrIncomplete)
	case len(si.digestAlgorithm.Algorithm) == 0:
		return fmt.Errorf("%w: digest algorithm not set", ErrIncomplete)
	case len(si.signatureAlgorithm.Algorithm) == 0:
		return fmt.Errorf("%w: signature algorithm not set", ErrIncomplete)
	}
	return nil
}

// placeholderLength is the worst-case signature length for the configured
// algorithm, refined by the signing certificate's key when it is known.
func (si *SignerInfo) placeholderLength() (int, error) {
	var pub interface{}
	if si.signingCert != nil {
		if key, err := pkicrypto.PublicKey(si.signingCert); err == nil {
			pub = key
		}
	}
	return pkicrypto.MaxSignatureSize(si.signatureAlgorithm.Algorithm, pub)
}

// encode writes the SignerInfo SEQUENCE around the given signed-attribute
// SET encoding and signature value.
func (si *SignerInfo) encode(signedAttrs, sig []byte) ([]byte, error) {
	signedContents, err := setContents(signedAttrs)
	if err != nil {
		return nil, err
	}
	digestAlg, err := asn1.Marshal(si.digestAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal digest algorithm: %w", err)
	}
	sigAlg, err := marshalAlgorithm(si.signatureAlgorithm)
	if err != nil {
		return nil, err
	}

	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1Int64(si.sid.version())
		si.sid.marshal(b)
		b.AddBytes(digestAlg)
		if len(signedContents) > 0 {
			b.AddASN1(tagSignedAttrs, func(b *cryptobyte.Builder) {
				b.AddBytes(signedContents)
			})
		}
		b.AddBytes(sigAlg)
		b.AddASN1OctetString(sig)
		if si.unsignedAttrs.Len() > 0 {
			b.AddASN1(tagUnsignedAttrs, func(b *cryptobyte.Builder) {
				si.unsignedAttrs.addContents(b)
			})
		}
	})
	return b.Bytes()
}

// marshalAlgorithm encodes an AlgorithmIdentifier, keeping absent
// parameters absent.
func marshalAlgorithm(alg pkix.AlgorithmIdentifier) ([]byte, error) {
	der, err := asn1.Marshal(alg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal algorithm %s: %w", alg.Algorithm, err)
	}
	return der, nil
}

// setContents returns the contents of a SET (or [0]/[1] IMPLICIT SET) encoding.
func setContents(der []byte) ([]byte, error) {
	input := cryptobyte.String(der)
	var contents cryptobyte.String
	var tag cbasn1.Tag
	if !input.ReadAnyASN1(&contents, &tag) || !input.Empty() {
		return nil, fmt.Errorf("%w: attribute set", ErrInvalidContainerStructure)
	}
	if tag != cbasn1.SET && tag != tagSignedAttrs && tag != tagUnsignedAttrs {
		return nil, fmt.Errorf("%w: unexpected attribute set tag 0x%02x", ErrInvalidContainerStructure, uint8(tag))
	}
	return contents, nil
}

// retagSet returns der re-encoded with the universal SET tag, as required
// for digesting signed attributes (RFC 5652 section 5.4).
func retagSet(der []byte) ([]byte, error) {
	contents, err := setContents(der)
	if err != nil {
		return nil, err
	}
	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SET, func(b *cryptobyte.Builder) {
		b.AddBytes(contents)
	})
	return b.Bytes()
}
