// Package policy loads the verification policy: how OCSP and CRL evidence is
// judged, which conformance level signatures must meet and the default
// digest algorithm.
package policy

import (
	"crypto"
	"encoding/asn1"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/remiblancher/sigevidence/pkg/conformance"
	"github.com/remiblancher/sigevidence/pkg/crl"
	pkicrypto "github.com/remiblancher/sigevidence/pkg/crypto"
	"github.com/remiblancher/sigevidence/pkg/ocsp"
)

// Policy is a parsed verification policy.
type Policy struct {
	OCSP            OCSPPolicy
	CRL             CRLPolicy
	Conformance     conformance.Level
	DigestAlgorithm crypto.Hash
}

// OCSPPolicy configures the OCSP verifier.
type OCSPPolicy struct {
	MissingNextUpdate ocsp.MissingNextUpdatePolicy
	Grace             time.Duration
	ClockSkew         time.Duration
}

// CRLPolicy configures the CRL verifier.
type CRLPolicy struct {
	ClockSkew time.Duration
}

// policyYAML is the YAML representation of a Policy.
type policyYAML struct {
	OCSP struct {
		MissingNextUpdate string `yaml:"missing_next_update,omitempty"`
		Grace             string `yaml:"grace,omitempty"`
		ClockSkew         string `yaml:"clock_skew,omitempty"`
	} `yaml:"ocsp"`
	CRL struct {
		ClockSkew string `yaml:"clock_skew,omitempty"`
	} `yaml:"crl"`
	Conformance     string `yaml:"conformance,omitempty"`
	DigestAlgorithm string `yaml:"digest_algorithm,omitempty"`
}

// Default returns the policy used when no file is given: responses without
// nextUpdate are accepted, no clock skew, no conformance level, SHA-256.
func Default() *Policy {
	return &Policy{
		OCSP:            OCSPPolicy{MissingNextUpdate: ocsp.AcceptMissingNextUpdate},
		Conformance:     conformance.None,
		DigestAlgorithm: crypto.SHA256,
	}
}

// Load loads a policy from a YAML file.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates a YAML policy. Omitted fields keep their
// Default values.
func Parse(data []byte) (*Policy, error) {
	var py policyYAML
	if err := yaml.Unmarshal(data, &py); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}

	p := Default()
	var err error

	switch strings.ToLower(py.OCSP.MissingNextUpdate) {
	case "", "accept":
		p.OCSP.MissingNextUpdate = ocsp.AcceptMissingNextUpdate
	case "reject":
		p.OCSP.MissingNextUpdate = ocsp.RejectMissingNextUpdate
	case "grace":
		p.OCSP.MissingNextUpdate = ocsp.GraceMissingNextUpdate
	default:
		return nil, fmt.Errorf("invalid ocsp.missing_next_update %q (accept, reject or grace)", py.OCSP.MissingNextUpdate)
	}
	if p.OCSP.Grace, err = parseOptionalDuration("ocsp.grace", py.OCSP.Grace); err != nil {
		return nil, err
	}
	if p.OCSP.ClockSkew, err = parseOptionalDuration("ocsp.clock_skew", py.OCSP.ClockSkew); err != nil {
		return nil, err
	}
	if p.CRL.ClockSkew, err = parseOptionalDuration("crl.clock_skew", py.CRL.ClockSkew); err != nil {
		return nil, err
	}
	if p.Conformance, err = conformance.ParseLevel(py.Conformance); err != nil {
		return nil, fmt.Errorf("invalid conformance: %w", err)
	}
	if py.DigestAlgorithm != "" {
		if p.DigestAlgorithm, err = pkicrypto.HashByName(py.DigestAlgorithm); err != nil {
			return nil, fmt.Errorf("invalid digest_algorithm: %w", err)
		}
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	return p, nil
}

// Validate checks that the policy is consistent.
func (p *Policy) Validate() error {
	if p.OCSP.MissingNextUpdate == ocsp.GraceMissingNextUpdate && p.OCSP.Grace <= 0 {
		return fmt.Errorf("ocsp.grace is required when ocsp.missing_next_update is grace")
	}
	if p.OCSP.Grace < 0 {
		return fmt.Errorf("ocsp.grace must not be negative")
	}
	if p.OCSP.ClockSkew < 0 || p.CRL.ClockSkew < 0 {
		return fmt.Errorf("clock_skew must not be negative")
	}
	if p.Conformance < conformance.None || p.Conformance > conformance.PDFA4 {
		return fmt.Errorf("unknown conformance level %d", int(p.Conformance))
	}
	if _, err := pkicrypto.OIDForHash(p.DigestAlgorithm); err != nil {
		return fmt.Errorf("digest_algorithm: %w", err)
	}
	return nil
}

// OCSPVerifier returns an OCSP verifier configured by the policy.
func (p *Policy) OCSPVerifier() *ocsp.Verifier {
	return &ocsp.Verifier{
		MissingNextUpdate: p.OCSP.MissingNextUpdate,
		Grace:             p.OCSP.Grace,
		ClockSkew:         p.OCSP.ClockSkew,
	}
}

// CRLVerifier returns a CRL verifier configured by the policy.
func (p *Policy) CRLVerifier() *crl.Verifier {
	return &crl.Verifier{ClockSkew: p.CRL.ClockSkew}
}

// DigestOID returns the OID of the policy digest algorithm.
func (p *Policy) DigestOID() (asn1.ObjectIdentifier, error) {
	return pkicrypto.OIDForHash(p.DigestAlgorithm)
}

// Marshal encodes the policy as YAML.
func (p *Policy) Marshal() ([]byte, error) {
	var py policyYAML
	py.OCSP.MissingNextUpdate = p.OCSP.MissingNextUpdate.String()
	if p.OCSP.Grace > 0 {
		py.OCSP.Grace = p.OCSP.Grace.String()
	}
	if p.OCSP.ClockSkew > 0 {
		py.OCSP.ClockSkew = p.OCSP.ClockSkew.String()
	}
	if p.CRL.ClockSkew > 0 {
		py.CRL.ClockSkew = p.CRL.ClockSkew.String()
	}
	if p.Conformance != conformance.None {
		py.Conformance = p.Conformance.String()
	}
	py.DigestAlgorithm = hashName(p.DigestAlgorithm)
	return yaml.Marshal(&py)
}

func hashName(h crypto.Hash) string {
	return strings.ToLower(h.String())
}

func parseOptionalDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := parseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", field, err)
	}
	return d, nil
}

// parseDuration parses a duration string, supporting a leading day count
// ("7d", "1d12h") in addition to time.ParseDuration syntax.
func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	var total time.Duration
	remaining := s
	if idx := strings.Index(remaining, "d"); idx > 0 {
		days, err := strconv.Atoi(remaining[:idx])
		if err != nil {
			return 0, fmt.Errorf("invalid days: %w", err)
		}
		total += time.Duration(days) * 24 * time.Hour
		remaining = remaining[idx+1:]
	}
	if remaining != "" {
		d, err := time.ParseDuration(remaining)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %w", err)
		}
		total += d
	}
	return total, nil
}
