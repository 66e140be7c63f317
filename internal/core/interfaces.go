package core

// Frame is a marshaled signaling message ready for delivery.
type Frame []byte

// Notifier is the delivery side of one peer's signaling connection.
// TrySend must never block; a full buffer is reported as an error and the
// frame is dropped for that recipient only.
// Owned by the adapter; the adapter must Close() it.
type Notifier interface {
	TrySend(Frame) error
	Close()
}
