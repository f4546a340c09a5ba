// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// It owns socket lifecycle management and the request/response DTOs of the
// control protocol. The server embeds the daemon and funnels queue operations
// through the shared API service, so IPC and HTTP callers observe identical
// semantics. The client dials with a short timeout so CLI commands fail fast
// when the daemon is offline.
package ipc
