// Package outbox stores messages that could not be proven durable on the broker.
//
// A Store inserts one row per message into the <PREFIX>_OUTBOX_MESSAGES table using a
// connection or transaction owned by the caller, so the row commits or rolls back
// together with the caller's own writes. Transient failures are retried with a jittered
// exponential backoff, everything else is reported as ErrStorageFatal.
//
// Provisioning the table and draining it back to the broker are left to the host
// application.
package outbox
