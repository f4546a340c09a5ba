// Package preflight provides readiness checks for the filesystem paths,
// binaries, and database that loom depends on.
//
// The daemon runs RunAll at startup and logs failures without aborting,
// so a missing assembler surfaces immediately instead of on the first
// claimed job. The CLI status command renders the same checks so
// operators see what the daemon saw.
package preflight
