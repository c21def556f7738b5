// Package throttle counts failed attempts per key in fixed windows.
//
// A window opens on the first failure for a key and lasts Window. Once
// MaxAttempts failures land in the window, Check and Fail return
// ErrRateLimited until the window expires or Reset clears it.
//
// Two backends share these semantics: Redis (INCR plus EXPIRE on the first
// hit, so limits hold across processes) and Memory for a single process.
package throttle
