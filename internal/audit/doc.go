// Package audit delivers session lifecycle records (sign-in, sign-up,
// sign-out, initialization outcomes, redirects) to a Sink on a background
// goroutine so that emitting never waits on the sink's I/O.
//
// The engine decides what to record; this package only queues and delivers.
// A nil *Dispatcher is valid and discards everything.
package audit
