package courier

// DeliveryStatus is the outcome of a publish attempt.
//
// Only NotPersisted, PossiblyPersisted and Persisted are valid. The zero value is
// invalid and has no integer representation to convert from.
type DeliveryStatus struct {
	state deliveryState
}

type deliveryState uint8

const (
	stateUnknown deliveryState = iota
	stateNotPersisted
	statePossiblyPersisted
	statePersisted
)

var (
	// NotPersisted means the broker definitely did not store the message.
	NotPersisted = DeliveryStatus{state: stateNotPersisted}

	// PossiblyPersisted means the broker may have stored the message but did not confirm it,
	// typically after a timeout or a lost acknowledgment.
	PossiblyPersisted = DeliveryStatus{state: statePossiblyPersisted}

	// Persisted means the message was durably stored by the broker or by the outbox.
	Persisted = DeliveryStatus{state: statePersisted}
)

// IsValid reports whether s is one of the three named statuses.
func (s DeliveryStatus) IsValid() bool {
	switch s.state {
	case stateNotPersisted, statePossiblyPersisted, statePersisted:
		return true
	default:
		return false
	}
}

func (s DeliveryStatus) String() string {
	switch s.state {
	case stateNotPersisted:
		return "not_persisted"
	case statePossiblyPersisted:
		return "possibly_persisted"
	case statePersisted:
		return "persisted"
	default:
		return "unknown"
	}
}
