// Package job defines the core types of the queue: the durable Record and
// its five-state lifecycle, the Handler contract implemented by job types,
// the Registry mapping type names to handlers, and the Store interface the
// dispatcher claims work through.
//
// A Record moves strictly forward: pending → running → one of completed,
// failed, or cancelled, or directly pending → cancelled when a cancel
// request arrives before dispatch. Terminal states are immutable; the
// retention sweeper eventually deletes them.
package job
