// Package audit records signature and revocation-evidence operations in a
// hash-chained JSONL trail.
//
// Each event carries the SHA-256 of its canonical JSON and of the previous
// event, so any edit, insertion or removal breaks VerifyChain. The library
// packages never log; the CLI and the validation pipeline do, and a failed
// audit write fails the operation.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// EventType represents the category of audit event.
type EventType string

const (
	// SignerInfo lifecycle
	EventSignerInfoFrozen EventType = "SIGNERINFO_FROZEN"
	EventSignerInfoSigned EventType = "SIGNERINFO_SIGNED"
	EventSignerInfoParsed EventType = "SIGNERINFO_PARSED"

	// Revocation evidence
	EventOCSPVerify EventType = "OCSP_VERIFY"
	EventCRLVerify  EventType = "CRL_VERIFY"

	// Validation pipeline
	EventSignatureValidate EventType = "SIGNATURE_VALIDATE"
)

// Result represents the outcome of an audited operation. A negative
// revocation verdict is a success of the operation; the verdict itself goes
// in Context.Verdict.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
)

// Actor represents who performed the action.
type Actor struct {
	Type string `json:"type"`           // "user", "system", "service"
	ID   string `json:"id"`             // username or service identifier
	Host string `json:"host,omitempty"` // hostname where action occurred
}

// Object represents what was acted upon.
type Object struct {
	Type    string `json:"type"`              // "signer-info", "ocsp-response", "crl", "certificate"
	Serial  string `json:"serial,omitempty"`  // serial of the certificate concerned
	Subject string `json:"subject,omitempty"` // subject DN of the certificate concerned
	Path    string `json:"path,omitempty"`    // input file
	Digest  string `json:"digest,omitempty"`  // sha256 of the object bytes
}

// Context provides additional details about the operation.
type Context struct {
	Algorithm   string `json:"algorithm,omitempty"`    // signature algorithm OID
	Digest      string `json:"digest_alg,omitempty"`   // digest algorithm OID
	Verdict     string `json:"verdict,omitempty"`      // good, revoked, not fresh, ...
	CheckTime   string `json:"check_time,omitempty"`   // RFC3339 point in time evaluated
	Responder   string `json:"responder,omitempty"`    // OCSP responder subject
	Delegated   bool   `json:"delegated,omitempty"`    // delegated OCSP responder
	Evidence    int    `json:"evidence,omitempty"`     // number of archived evidence items
	Conformance string `json:"conformance,omitempty"`  // conformance level checked
	Size        int    `json:"size,omitempty"`         // encoded or estimated size in bytes
	Reason      string `json:"reason,omitempty"`       // failure reason
}

// Event represents a single audit log entry.
type Event struct {
	EventType EventType `json:"event_type"`
	Timestamp string    `json:"timestamp"` // RFC3339 UTC
	Actor     Actor     `json:"actor"`
	Object    Object    `json:"object"`
	Context   Context   `json:"context,omitempty"`
	Result    Result    `json:"result"`
	HashPrev  string    `json:"hash_prev"` // SHA-256 hash of previous event
	Hash      string    `json:"hash"`      // SHA-256 hash of this event
}

// NewEvent creates a new audit event with current timestamp and actor info.
func NewEvent(eventType EventType, result Result) *Event {
	hostname, _ := os.Hostname()
	return &Event{
		EventType: eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Actor: Actor{
			Type: "user",
			ID:   currentUser(),
			Host: hostname,
		},
		Result: result,
	}
}

func currentUser() string {
	for _, env := range []string{"USER", "USERNAME"} {
		if u := os.Getenv(env); u != "" {
			return u
		}
	}
	return "unknown"
}

// WithObject sets the object field.
func (e *Event) WithObject(obj Object) *Event {
	e.Object = obj
	return e
}

// WithContext sets the context field.
func (e *Event) WithContext(ctx Context) *Event {
	e.Context = ctx
	return e
}

// WithActor overrides the default actor.
func (e *Event) WithActor(actor Actor) *Event {
	e.Actor = actor
	return e
}

// WithError marks the event failed and records err as the reason.
func (e *Event) WithError(err error) *Event {
	if err != nil {
		e.Result = ResultFailure
		e.Context.Reason = err.Error()
	}
	return e
}

// Validate checks that required fields are present.
func (e *Event) Validate() error {
	switch {
	case e.EventType == "":
		return fmt.Errorf("event_type is required")
	case e.Timestamp == "":
		return fmt.Errorf("timestamp is required")
	case e.Actor.Type == "" || e.Actor.ID == "":
		return fmt.Errorf("actor type and id are required")
	case e.Result == "":
		return fmt.Errorf("result is required")
	}
	return nil
}

// CanonicalJSON returns the event as JSON without the Hash field, the input
// of the chain hash.
func (e *Event) CanonicalJSON() ([]byte, error) {
	type eventForHash struct {
		EventType EventType `json:"event_type"`
		Timestamp string    `json:"timestamp"`
		Actor     Actor     `json:"actor"`
		Object    Object    `json:"object"`
		Context   Context   `json:"context,omitempty"`
		Result    Result    `json:"result"`
		HashPrev  string    `json:"hash_prev"`
	}
	return json.Marshal(eventForHash{
		EventType: e.EventType,
		Timestamp: e.Timestamp,
		Actor:     e.Actor,
		Object:    e.Object,
		Context:   e.Context,
		Result:    e.Result,
		HashPrev:  e.HashPrev,
	})
}

// JSON returns the full event as JSON.
func (e *Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// DigestOf returns the "sha256:<hex>" fingerprint recorded in Object.Digest.
func DigestOf(data []byte) string {
	sum := sha256.Sum256(data)
	return HashPrefix + hex.EncodeToString(sum[:])
}
