package cms

import (
	"bytes"
	"encoding/asn1"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// Attribute represents a CMS attribute.
//
//	Attribute ::= SEQUENCE {
//	    attrType   OBJECT IDENTIFIER,
//	    attrValues SET OF AttributeValue
//	}
type Attribute struct {
	Type   asn1.ObjectIdentifier
	Values []asn1.RawValue `asn1:"set"`
}

// NewAttribute creates an attribute from Go values. asn1.RawValue values are
// taken as-is, anything else is DER-marshaled.
func NewAttribute(oid asn1.ObjectIdentifier, values ...interface{}) (Attribute, error) {
	attr := Attribute{Type: oid}
	for _, v := range values {
		if rv, ok := v.(asn1.RawValue); ok {
			attr.Values = append(attr.Values, rv)
			continue
		}
		der, err := asn1.Marshal(v)
		if err != nil {
			return Attribute{}, fmt.Errorf("failed to marshal value of %s: %w", oid, err)
		}
		attr.Values = append(attr.Values, asn1.RawValue{FullBytes: der})
	}
	return attr.normalize()
}

// normalize checks the attribute and makes every value carry its complete
// DER encoding in FullBytes.
func (a Attribute) normalize() (Attribute, error) {
	if len(a.Type) == 0 {
		return Attribute{}, fmt.Errorf("%w: attribute type is empty", ErrInvalidContainerStructure)
	}
	if len(a.Values) == 0 {
		return Attribute{}, fmt.Errorf("%w: attribute %s has no values", ErrInvalidContainerStructure, a.Type)
	}
	out := Attribute{Type: append(asn1.ObjectIdentifier(nil), a.Type...), Values: make([]asn1.RawValue, 0, len(a.Values))}
	for _, v := range a.Values {
		der := v.FullBytes
		if len(der) == 0 {
			var err error
			der, err = asn1.Marshal(v)
			if err != nil {
				return Attribute{}, fmt.Errorf("failed to marshal value of %s: %w", a.Type, err)
			}
		}
		rv, err := parseRawValue(der)
		if err != nil {
			return Attribute{}, fmt.Errorf("value of %s: %w", a.Type, err)
		}
		out.Values = append(out.Values, rv)
	}
	return out, nil
}

// parseRawValue parses a private copy of der, so the returned value shares
// no memory with the caller's buffer.
func parseRawValue(der []byte) (asn1.RawValue, error) {
	var rv asn1.RawValue
	rest, err := asn1.Unmarshal(append([]byte(nil), der...), &rv)
	if err != nil {
		return asn1.RawValue{}, fmt.Errorf("%w: %v", ErrInvalidContainerStructure, err)
	}
	if len(rest) > 0 {
		return asn1.RawValue{}, fmt.Errorf("%w: trailing data after value", ErrInvalidContainerStructure)
	}
	return rv, nil
}

// clone returns a deep copy of the attribute.
func (a Attribute) clone() Attribute {
	out := Attribute{Type: append(asn1.ObjectIdentifier(nil), a.Type...), Values: make([]asn1.RawValue, len(a.Values))}
	for i, v := range a.Values {
		rv, err := parseRawValue(v.FullBytes)
		if err != nil {
			// Only normalized values are stored; keep the bytes anyway.
			rv = v
			rv.FullBytes = append([]byte(nil), v.FullBytes...)
			rv.Bytes = append([]byte(nil), v.Bytes...)
		}
		out.Values[i] = rv
	}
	return out
}

// Equal reports whether both attributes have the same type and byte-equal values.
func (a Attribute) Equal(other Attribute) bool {
	if !a.Type.Equal(other.Type) || len(a.Values) != len(other.Values) {
		return false
	}
	for i := range a.Values {
		if !bytes.Equal(a.Values[i].FullBytes, other.Values[i].FullBytes) {
			return false
		}
	}
	return true
}

// AttributeSet is an ordered collection of attributes with at most one
// attribute per type. The zero value is an empty set.
//
// Insertion order is preserved and used for encoding.
type AttributeSet struct {
	attrs []Attribute
}

// NewAttributeSet creates a set from attributes, rejecting duplicate types.
func NewAttributeSet(attrs ...Attribute) (*AttributeSet, error) {
	s := &AttributeSet{}
	for _, a := range attrs {
		if err := s.Add(a); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add appends an attribute. It fails with ErrDuplicateAttribute when an
// attribute of the same type is already present.
func (s *AttributeSet) Add(attr Attribute) error {
	if s.Has(attr.Type) {
		return fmt.Errorf("%w: %s", ErrDuplicateAttribute, attr.Type)
	}
	norm, err := attr.normalize()
	if err != nil {
		return err
	}
	s.attrs = append(s.attrs, norm)
	return nil
}

// put replaces the attribute of the same type in place, or appends it.
func (s *AttributeSet) put(attr Attribute) error {
	norm, err := attr.normalize()
	if err != nil {
		return err
	}
	if i := s.index(attr.Type); i >= 0 {
		s.attrs[i] = norm
		return nil
	}
	s.attrs = append(s.attrs, norm)
	return nil
}

// remove deletes the attribute of the given type, if any.
func (s *AttributeSet) remove(oid asn1.ObjectIdentifier) {
	if i := s.index(oid); i >= 0 {
		s.attrs = append(s.attrs[:i], s.attrs[i+1:]...)
	}
}

func (s *AttributeSet) index(oid asn1.ObjectIdentifier) int {
	if s == nil {
		return -1
	}
	for i, a := range s.attrs {
		if a.Type.Equal(oid) {
			return i
		}
	}
	return -1
}

// Get returns a copy of the attribute of the given type.
func (s *AttributeSet) Get(oid asn1.ObjectIdentifier) (Attribute, bool) {
	i := s.index(oid)
	if i < 0 {
		return Attribute{}, false
	}
	return s.attrs[i].clone(), true
}

// Has reports whether an attribute of the given type is present.
func (s *AttributeSet) Has(oid asn1.ObjectIdentifier) bool {
	return s.index(oid) >= 0
}

// Len returns the number of attributes.
func (s *AttributeSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.attrs)
}

// All returns copies of the attributes in insertion order.
func (s *AttributeSet) All() []Attribute {
	if s == nil {
		return nil
	}
	out := make([]Attribute, len(s.attrs))
	for i, a := range s.attrs {
		out[i] = a.clone()
	}
	return out
}

// Equal reports whether both sets hold the same attributes, regardless of order.
func (s *AttributeSet) Equal(other *AttributeSet) bool {
	if s.Len() != other.Len() {
		return false
	}
	for _, a := range s.All() {
		b, ok := other.Get(a.Type)
		if !ok || !a.Equal(b) {
			return false
		}
	}
	return true
}

func (s *AttributeSet) clone() *AttributeSet {
	return &AttributeSet{attrs: s.All()}
}

// Encode returns the DER encoding of the set as SET OF Attribute. Attributes
// are written in insertion order, so the output is deterministic.
func (s *AttributeSet) Encode() ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SET, func(b *cryptobyte.Builder) {
		s.addContents(b)
	})
	return b.Bytes()
}

// addContents writes the attributes without the enclosing SET header, so
// callers can apply IMPLICIT [0] or [1] tags.
func (s *AttributeSet) addContents(b *cryptobyte.Builder) {
	if s == nil {
		return
	}
	for _, a := range s.attrs {
		b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier(a.Type)
			b.AddASN1(cbasn1.SET, func(b *cryptobyte.Builder) {
				for _, v := range a.Values {
					b.AddBytes(v.FullBytes)
				}
			})
		})
	}
}

// DecodeAttributeSet parses a SET OF Attribute. The outer tag may also be
// the IMPLICIT [0] or [1] used for signed and unsigned attributes.
func DecodeAttributeSet(der []byte) (*AttributeSet, error) {
	input := cryptobyte.String(der)
	var contents cryptobyte.String
	var tag cbasn1.Tag
	if !input.ReadAnyASN1(&contents, &tag) || !input.Empty() {
		return nil, fmt.Errorf("%w: attribute set", ErrInvalidContainerStructure)
	}
	if tag != cbasn1.SET && tag != tagSignedAttrs && tag != tagUnsignedAttrs {
		return nil, fmt.Errorf("%w: unexpected attribute set tag 0x%02x", ErrInvalidContainerStructure, uint8(tag))
	}
	return decodeAttributes(contents)
}

func decodeAttributes(contents cryptobyte.String) (*AttributeSet, error) {
	set := &AttributeSet{}
	for !contents.Empty() {
		var attr, values cryptobyte.String
		var oid asn1.ObjectIdentifier
		if !contents.ReadASN1(&attr, cbasn1.SEQUENCE) ||
			!attr.ReadASN1ObjectIdentifier(&oid) ||
			!attr.ReadASN1(&values, cbasn1.SET) ||
			!attr.Empty() {
			return nil, fmt.Errorf("%w: attribute", ErrInvalidContainerStructure)
		}

		a := Attribute{Type: oid}
		for !values.Empty() {
			var elem cryptobyte.String
			var elemTag cbasn1.Tag
			if !values.ReadAnyASN1Element(&elem, &elemTag) {
				return nil, fmt.Errorf("%w: value of %s", ErrInvalidContainerStructure, oid)
			}
			a.Values = append(a.Values, asn1.RawValue{FullBytes: elem})
		}
		if err := set.Add(a); err != nil {
			return nil, err
		}
	}
	return set, nil
}
