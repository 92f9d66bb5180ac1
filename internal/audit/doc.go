// Package audit buffers security events and forwards them to a [Sink].
//
// The [Dispatcher] never blocks an auth operation for longer than the
// caller's context, and with DropIfFull it never blocks at all. Deciding
// which events to emit belongs to the engine.
package audit
