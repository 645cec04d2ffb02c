package main

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/remiblancher/sigevidence/pkg/policy"
	"github.com/remiblancher/sigevidence/pkg/x509util"
)

// readDER reads a DER file, or the first block of a PEM file.
func readDER(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if block, _ := pem.Decode(data); block != nil {
		return block.Bytes, nil
	}
	return data, nil
}

// readDERFiles reads every path with readDER.
func readDERFiles(paths []string) ([][]byte, error) {
	out := make([][]byte, 0, len(paths))
	for _, p := range paths {
		der, err := readDER(p)
		if err != nil {
			return nil, err
		}
		out = append(out, der)
	}
	return out, nil
}

// loadCertificates loads every certificate of every file.
func loadCertificates(paths []string) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for _, p := range paths {
		c, err := x509util.LoadCertificates(p)
		if err != nil {
			return nil, err
		}
		certs = append(certs, c...)
	}
	return certs, nil
}

// loadOptionalCertificate loads the first certificate of path, nil if path
// is empty.
func loadOptionalCertificate(path string) (*x509.Certificate, error) {
	if path == "" {
		return nil, nil
	}
	return x509util.LoadCertificate(path)
}

// parseCheckTime parses an RFC 3339 time; empty means now.
func parseCheckTime(s string) (time.Time, error) {
	if s == "" {
		return time.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q (expected RFC 3339, e.g. 2024-01-15T10:00:00Z): %w", s, err)
	}
	return t, nil
}

// loadPolicy loads the --policy file, or the built-in policy.
func loadPolicy() (*policy.Policy, error) {
	if policyPath == "" {
		return policy.Default(), nil
	}
	return policy.Load(policyPath)
}

func formatSerial(n *big.Int) string {
	if n == nil {
		return ""
	}
	return fmt.Sprintf("0x%X", n)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
