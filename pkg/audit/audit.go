package audit

import (
	"fmt"
	"sync"
)

var (
	// globalWriter is the default audit writer.
	globalWriter Writer = NopWriter{}
	globalMu     sync.RWMutex

	// enabled tracks whether audit logging is active.
	enabled bool
)

// Init installs w as the global audit writer. A nil writer disables
// auditing.
func Init(w Writer) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if w == nil {
		globalWriter = NopWriter{}
		enabled = false
		return nil
	}
	globalWriter = w
	enabled = true
	return nil
}

// InitFile installs a FileWriter on path; an empty path disables auditing.
func InitFile(path string) error {
	if path == "" {
		return Init(nil)
	}
	w, err := NewFileWriter(path)
	if err != nil {
		return err
	}
	return Init(w)
}

// Close closes the global audit writer.
// Should be called when the application exits.
func Close() error {
	globalMu.Lock()
	defer globalMu.Unlock()

	err := globalWriter.Close()
	globalWriter = NopWriter{}
	enabled = false
	return err
}

// Enabled returns whether audit logging is active.
func Enabled() bool {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return enabled
}

// Global returns the global audit writer.
func Global() Writer {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalWriter
}

// Log writes an audit event to the global writer.
func Log(event *Event) error {
	return Global().Write(event)
}

// MustLog writes an audit event and returns an error suitable for
// failing the parent operation if audit logging fails.
//
//	if err := audit.MustLog(event); err != nil {
//	    return err
//	}
func MustLog(event *Event) error {
	if err := Log(event); err != nil {
		return fmt.Errorf("audit log failed: %w", err)
	}
	return nil
}

// SignerInfoDetails describes a SignerInfo for the audit trail.
type SignerInfoDetails struct {
	Path      string
	Subject   string
	Serial    string
	Algorithm string
	Digest    string
	Size      int
	Evidence  int
	DER       []byte
}

// Event builds the SignerInfo event of the given type.
func (d SignerInfoDetails) Event(eventType EventType, err error) *Event {
	obj := Object{Type: "signer-info", Path: d.Path, Subject: d.Subject, Serial: d.Serial}
	if len(d.DER) > 0 {
		obj.Digest = DigestOf(d.DER)
	}
	return NewEvent(eventType, ResultSuccess).
		WithObject(obj).
		WithContext(Context{
			Algorithm: d.Algorithm,
			Digest:    d.Digest,
			Size:      d.Size,
			Evidence:  d.Evidence,
		}).
		WithError(err)
}

// LogSignerInfoFrozen logs the serialization of the signed attributes.
func LogSignerInfoFrozen(d SignerInfoDetails, err error) error {
	return MustLog(d.Event(EventSignerInfoFrozen, err))
}

// LogSignerInfoSigned logs a signature computed over a SignerInfo.
func LogSignerInfoSigned(d SignerInfoDetails, err error) error {
	return MustLog(d.Event(EventSignerInfoSigned, err))
}

// LogSignerInfoParsed logs a SignerInfo read from DER.
func LogSignerInfoParsed(d SignerInfoDetails, err error) error {
	return MustLog(d.Event(EventSignerInfoParsed, err))
}

// EvidenceDetails describes a revocation check for the audit trail.
type EvidenceDetails struct {
	Path      string
	Subject   string
	Serial    string
	Verdict   string
	CheckTime string
	Responder string
	Delegated bool
	DER       []byte
}

// Event builds the OCSP_VERIFY or CRL_VERIFY event for the check.
func (d EvidenceDetails) Event(eventType EventType, err error) *Event {
	objType := "ocsp-response"
	if eventType == EventCRLVerify {
		objType = "crl"
	}
	obj := Object{Type: objType, Path: d.Path, Subject: d.Subject, Serial: d.Serial}
	if len(d.DER) > 0 {
		obj.Digest = DigestOf(d.DER)
	}
	return NewEvent(eventType, ResultSuccess).
		WithObject(obj).
		WithContext(Context{
			Verdict:   d.Verdict,
			CheckTime: d.CheckTime,
			Responder: d.Responder,
			Delegated: d.Delegated,
		}).
		WithError(err)
}

// LogOCSPVerify logs an OCSP evidence check.
func LogOCSPVerify(d EvidenceDetails, err error) error {
	return MustLog(d.Event(EventOCSPVerify, err))
}

// LogCRLVerify logs a CRL evidence check.
func LogCRLVerify(d EvidenceDetails, err error) error {
	return MustLog(d.Event(EventCRLVerify, err))
}
