package crypto

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/cloudflare/circl/sign/mldsa/mldsa44"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"github.com/cloudflare/circl/sign/mldsa/mldsa87"
)

// LoadPrivateKey reads a PEM private key file.
func LoadPrivateKey(path string) (Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	signer, err := ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return signer, nil
}

// ParsePrivateKey parses the first PEM private key block: PKCS#8, SEC1,
// PKCS#1 or a raw ML-DSA key ("ML-DSA-65 PRIVATE KEY").
func ParsePrivateKey(data []byte) (Signer, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	var priv crypto.PrivateKey
	var err error
	switch block.Type {
	case "PRIVATE KEY":
		priv, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		priv, err = x509.ParseECPrivateKey(block.Bytes)
	case "RSA PRIVATE KEY":
		priv, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "ML-DSA-44 PRIVATE KEY":
		var k mldsa44.PrivateKey
		err = k.UnmarshalBinary(block.Bytes)
		priv = &k
	case "ML-DSA-65 PRIVATE KEY":
		var k mldsa65.PrivateKey
		err = k.UnmarshalBinary(block.Bytes)
		priv = &k
	case "ML-DSA-87 PRIVATE KEY":
		var k mldsa87.PrivateKey
		err = k.UnmarshalBinary(block.Bytes)
		priv = &k
	default:
		return nil, fmt.Errorf("unknown PEM type: %s", block.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", block.Type, err)
	}

	signer, ok := priv.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("%w: %T cannot sign", ErrUnsupportedAlgorithm, priv)
	}
	return signer, nil
}
