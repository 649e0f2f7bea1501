// Package event defines the in-flight unit of the pipeline: a Record
// carrying either a raw log line or a structured payload, together with the
// offset token authorizing cursor advancement once every sink has delivered
// the record.
//
// Structured payloads are JSON-like trees decoded with json.Number so that
// integers beyond 53 bits survive a parse/serialize round trip verbatim.
package event
