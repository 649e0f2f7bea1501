// Package plugin defines the driver contracts (Source, Transform, Sink),
// the typed argument table handed to driver factories, and the registry
// mapping configured plugin names to constructed drivers.
//
// Factories validate their arguments and open no files or connections
// (they may stat paths, and the script transform loads and runs its script
// once): sources open their files and sockets inside Run, sinks inside Open. Every constructed driver is owned by exactly one
// route; the registry enforces single ownership at claim time.
package plugin
