// Package errors provides standardized error handling for log-ship plugins
// and the route runtime.
//
// Errors carry one of three classes, which map directly onto the daemon's
// failure policy: Transient errors are retried with backoff (source reads,
// sink writes), Invalid errors drop the offending record and continue
// (malformed JSON, script failures, misconfigured transforms on raw
// payloads), and Fatal errors stop the route or, at startup, the daemon
// (configuration errors, permission-denied opens, exhausted reconnect
// ceilings).
//
// Wrapping follows the pattern "component.method: action failed: %w" so that
// process-log lines parse consistently:
//
//	return errors.WrapTransient(err, "tcp_socket", "Write", "remote write")
//
// Classification survives wrapping chains and integrates with the standard
// library's errors.Is and errors.As.
package errors
