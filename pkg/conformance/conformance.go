// Package conformance maps PDF/A conformance levels to the constraints they
// put on an embedded CMS signature.
package conformance

import (
	"errors"
	"fmt"
	"strings"

	"github.com/remiblancher/sigevidence/pkg/cms"
)

// Level is a PDF/A conformance part.
type Level int

const (
	// None applies no conformance constraints.
	None Level = iota
	PDFA1
	PDFA2
	PDFA3
	PDFA4
)

// Errors returned by Check.
var (
	ErrContentsTooLarge     = errors.New("signature contents exceed the conformance string limit")
	ErrSigningTimeForbidden = errors.New("signing-time signed attribute is not allowed")
	ErrUnknownLevel         = errors.New("unknown conformance level")
)

// String returns the configuration name of the level.
func (l Level) String() string {
	switch l {
	case None:
		return "none"
	case PDFA1:
		return "pdfa-1"
	case PDFA2:
		return "pdfa-2"
	case PDFA3:
		return "pdfa-3"
	case PDFA4:
		return "pdfa-4"
	default:
		return fmt.Sprintf("unknown(%d)", int(l))
	}
}

// ParseLevel parses "pdfa-1" .. "pdfa-4"; an empty string or "none" is None.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return None, nil
	case "pdfa-1", "pdf/a-1", "a1":
		return PDFA1, nil
	case "pdfa-2", "pdf/a-2", "a2":
		return PDFA2, nil
	case "pdfa-3", "pdf/a-3", "a3":
		return PDFA3, nil
	case "pdfa-4", "pdf/a-4", "a4":
		return PDFA4, nil
	default:
		return None, fmt.Errorf("%w: %q", ErrUnknownLevel, s)
	}
}

// Rules are the signature constraints of a level.
type Rules struct {
	// MaxContentsHexLength bounds the hex-encoded /Contents string, in
	// characters. Zero means unbounded.
	MaxContentsHexLength int

	// ForbidSigningTime rejects the CMS signing-time signed attribute; the
	// signing time lives in the signature dictionary instead.
	ForbidSigningTime bool
}

// RulesFor returns the rules of a level. Unknown levels get no rules.
func RulesFor(level Level) Rules {
	switch level {
	case PDFA1:
		return Rules{MaxContentsHexLength: 65535}
	case PDFA2, PDFA3, PDFA4:
		return Rules{MaxContentsHexLength: 32767, ForbidSigningTime: true}
	default:
		return Rules{}
	}
}

// CheckContentsLength checks the size in bytes of a complete CMS container
// against the /Contents limit of the level.
func CheckContentsLength(level Level, size int) error {
	rules := RulesFor(level)
	if rules.MaxContentsHexLength > 0 && 2*size > rules.MaxContentsHexLength {
		return fmt.Errorf("%w: %d hex characters, %s allows %d",
			ErrContentsTooLarge, 2*size, level, rules.MaxContentsHexLength)
	}
	return nil
}

// Check validates a SignerInfo against the rules of level. The estimate is
// a lower bound of the container size, so passing here is necessary but not
// sufficient; callers holding the full container use CheckContentsLength.
func Check(level Level, si *cms.SignerInfo) error {
	if level < None || level > PDFA4 {
		return fmt.Errorf("%w: %d", ErrUnknownLevel, int(level))
	}
	rules := RulesFor(level)

	if rules.ForbidSigningTime && si.SignedAttributes().Has(cms.OIDSigningTime) {
		return fmt.Errorf("%w by %s", ErrSigningTimeForbidden, level)
	}

	size, err := si.EstimatedSize()
	if err != nil {
		return err
	}
	return CheckContentsLength(level, size)
}
