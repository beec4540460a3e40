package natnet

import "fmt"

// UnsupportedMessageError reports a datagram tagged with a message type the
// caller does not decode. It is a no-op outcome, not a failure: the receive
// loop drops the datagram and moves on.
type UnsupportedMessageError struct {
	ID MessageID
}

func (e *UnsupportedMessageError) Error() string {
	return fmt.Sprintf("natnet: unsupported message %d", e.ID)
}

// MalformedRecordError reports payload contents that contradict themselves,
// like a count larger than the bytes left or data past the declared end.
type MalformedRecordError struct {
	Section string
	Offset  int
	Reason  string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("natnet: malformed %s at offset %d: %s", e.Section, e.Offset, e.Reason)
}

// UnsupportedSectionError reports a populated section this decoder cannot
// walk. Skeleton records carry no length prefix, so skipping them blind
// would desynchronize every field after them.
type UnsupportedSectionError struct {
	Section string
	Count   int
	Offset  int
}

func (e *UnsupportedSectionError) Error() string {
	return fmt.Sprintf("natnet: unsupported %s section (%d records) at offset %d", e.Section, e.Count, e.Offset)
}
