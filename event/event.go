package event

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/log-store/log-ship/errors"
)

// Token is the durable, source-specific part of a record's position. A nil
// Token means the source does not checkpoint (metrics, stdin).
type Token interface {
	// Kind returns the token kind tag used for cursor serialization
	Kind() string
}

// FileToken identifies a position in a tailed file: the stable file
// identity, the byte offset one past the line terminator, and the rotation
// generation observed when the line was read.
type FileToken struct {
	Device     uint64 `json:"device"`
	Inode      uint64 `json:"inode"`
	Offset     int64  `json:"offset"`
	Generation uint64 `json:"generation"`
}

// Kind implements Token
func (FileToken) Kind() string { return "file" }

func (t FileToken) String() string {
	return fmt.Sprintf("file(ino=%d off=%d gen=%d)", t.Inode, t.Offset, t.Generation)
}

// JournalToken is the journal library's opaque cursor string.
type JournalToken string

// Kind implements Token
func (JournalToken) Kind() string { return "journal" }

// Record is the unit that flows through a route. Records are produced by
// exactly one source and consumed by exactly one route; after the transform
// chain they are shared read-only across sink writers.
type Record struct {
	// Route is the id of the owning route
	Route string

	// Seq is the per-source monotonic sequence number; the ack tracker
	// orders pending tokens by it
	Seq uint64

	// Token is the durable offset; nil when the source does not checkpoint
	Token Token

	raw        string
	fields     map[string]any
	structured bool
}

// NewRaw creates a record carrying an unparsed log line
func NewRaw(route string, seq uint64, token Token, line string) Record {
	return Record{Route: route, Seq: seq, Token: token, raw: line}
}

// NewStructured creates a record carrying a parsed payload
func NewStructured(route string, seq uint64, token Token, fields map[string]any) Record {
	return Record{Route: route, Seq: seq, Token: token, fields: fields, structured: true}
}

// IsStructured reports whether the payload has been parsed
func (r Record) IsStructured() bool { return r.structured }

// Raw returns the unparsed line; empty for structured records
func (r Record) Raw() string { return r.raw }

// Fields returns the structured payload; nil for raw records. The map is
// owned by the record — transforms mutate it in place before fan-out.
func (r Record) Fields() map[string]any { return r.fields }

// WithFields returns a copy of the record carrying a structured payload,
// preserving routing and offset identity. Used by transforms that parse or
// rewrite the payload.
func (r Record) WithFields(fields map[string]any) Record {
	r.fields = fields
	r.structured = true
	r.raw = ""
	return r
}

// Ack returns the acknowledgement for this record
func (r Record) Ack() Ack {
	return Ack{Seq: r.Seq, Token: r.Token}
}

// MarshalLine serializes the payload as a single JSON value with no
// trailing newline: structured payloads become JSON objects, raw lines
// become JSON strings.
func (r Record) MarshalLine() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	var err error
	if r.structured {
		err = enc.Encode(r.fields)
	} else {
		err = enc.Encode(r.raw)
	}
	if err != nil {
		return nil, errors.WrapInvalid(err, "Record", "MarshalLine", "payload serialization")
	}

	// Encode appends a newline; sinks add their own framing
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// String renders the payload for the process log
func (r Record) String() string {
	if r.structured {
		b, err := r.MarshalLine()
		if err != nil {
			return fmt.Sprintf("!invalid record: %v", err)
		}
		return string(b)
	}
	return r.raw
}

// Ack is an acknowledgement flowing opposite to records: the offset token of
// a record whose downstream delivery (or sanctioned drop) completed. Sinks
// discard payloads after writing; only Seq and Token travel upstream.
type Ack struct {
	Seq   uint64
	Token Token
}

// ParseJSON decodes a line into a structured payload. The top-level value
// must be a JSON object; numbers are kept as json.Number.
func ParseJSON(line string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(line)))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, errors.WrapInvalid(err, "event", "ParseJSON", "line decode")
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrParsingFailed, "event", "ParseJSON", "top-level value is not an object")
	}

	return obj, nil
}
