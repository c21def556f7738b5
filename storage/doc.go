// Package storage provides durable key/value backends for persisted session
// state and the [Guarded] adapter that makes every storage call best-effort.
//
// # Backends
//
//   - [Memory]: process-local map, mainly for tests.
//   - [File]: one file per key under a directory, for CLI hosts.
//   - [Redis]: go-redis backed, for hosts that share state across processes.
//
// # Failure model
//
// Backends may fail. [Guard] probes a backend once; an unavailable backend
// degrades to no persistence. Guarded operations never return errors and
// never panic, so storage trouble can not break session bootstrap.
package storage
