package cms

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// ParseSignerInfo parses a DER SignerInfo and resolves its signing
// certificate among candidates. The structure is validated before the
// certificate lookup. The returned SignerInfo is frozen: its signed
// attributes keep the parsed bytes, re-tagged as a SET for digesting.
func ParseSignerInfo(der []byte, candidates []*x509.Certificate) (*SignerInfo, error) {
	si, err := parseSignerInfo(der)
	if err != nil {
		return nil, NewCMSError("parse", err)
	}
	cert, err := Identify(candidates, *si.sid)
	if err != nil {
		return nil, NewCMSError("parse", err)
	}
	si.signingCert = cert
	return si, nil
}

func parseSignerInfo(der []byte) (*SignerInfo, error) {
	input := cryptobyte.String(der)
	var seq cryptobyte.String
	if !input.ReadASN1(&seq, cbasn1.SEQUENCE) || !input.Empty() {
		return nil, fmt.Errorf("%w: SignerInfo is not a single SEQUENCE", ErrInvalidContainerStructure)
	}

	var version int64
	if !seq.ReadASN1Integer(&version) {
		return nil, fmt.Errorf("%w: missing version", ErrInvalidContainerStructure)
	}
	if version != 1 && version != 3 {
		return nil, fmt.Errorf("%w: unsupported SignerInfo version %d", ErrInvalidContainerStructure, version)
	}

	sid, err := readSignerIdentifier(&seq)
	if err != nil {
		return nil, err
	}
	// RFC 5652 section 5.3: version 1 goes with issuerAndSerialNumber,
	// version 3 with subjectKeyIdentifier.
	if sid.version() != version {
		return nil, fmt.Errorf("%w: version %d does not match %s signer identifier",
			ErrInvalidContainerStructure, version, sid.Kind)
	}

	digestAlg, err := readAlgorithm(&seq, "digestAlgorithm")
	if err != nil {
		return nil, err
	}

	si := NewSignerInfo()
	si.sid = &sid
	si.sidKind = sid.Kind
	si.digestAlgorithm = digestAlg

	signedSet := []byte{0x31, 0x00}
	if seq.PeekASN1Tag(tagSignedAttrs) {
		var contents cryptobyte.String
		if !seq.ReadASN1(&contents, tagSignedAttrs) {
			return nil, fmt.Errorf("%w: signedAttrs", ErrInvalidContainerStructure)
		}
		var b cryptobyte.Builder
		b.AddASN1(cbasn1.SET, func(b *cryptobyte.Builder) {
			b.AddBytes(contents)
		})
		if signedSet, err = b.Bytes(); err != nil {
			return nil, fmt.Errorf("%w: signedAttrs: %v", ErrInvalidContainerStructure, err)
		}
		if si.signedAttrs, err = decodeAttributes(contents); err != nil {
			return nil, err
		}
	}
	si.serializedSignedAttrs = signedSet

	if si.signatureAlgorithm, err = readAlgorithm(&seq, "signatureAlgorithm"); err != nil {
		return nil, err
	}

	var sig cryptobyte.String
	if !seq.ReadASN1(&sig, cbasn1.OCTET_STRING) {
		return nil, fmt.Errorf("%w: signature", ErrInvalidContainerStructure)
	}
	si.signature = append([]byte{}, sig...)

	if seq.PeekASN1Tag(tagUnsignedAttrs) {
		var contents cryptobyte.String
		if !seq.ReadASN1(&contents, tagUnsignedAttrs) {
			return nil, fmt.Errorf("%w: unsignedAttrs", ErrInvalidContainerStructure)
		}
		if si.unsignedAttrs, err = decodeAttributes(contents); err != nil {
			return nil, err
		}
	}

	if !seq.Empty() {
		return nil, fmt.Errorf("%w: trailing data in SignerInfo", ErrInvalidContainerStructure)
	}
	return si, nil
}

func readAlgorithm(input *cryptobyte.String, field string) (pkix.AlgorithmIdentifier, error) {
	var elem cryptobyte.String
	if !input.ReadASN1Element(&elem, cbasn1.SEQUENCE) {
		return pkix.AlgorithmIdentifier{}, fmt.Errorf("%w: %s", ErrInvalidContainerStructure, field)
	}
	var alg pkix.AlgorithmIdentifier
	if rest, err := asn1.Unmarshal(elem, &alg); err != nil || len(rest) > 0 {
		return pkix.AlgorithmIdentifier{}, fmt.Errorf("%w: %s", ErrInvalidContainerStructure, field)
	}
	return alg, nil
}
