package enums

// TrackingStatus mirrors the coarse delivery states reported by the carrier.
type TrackingStatus string

const (
	TrackingStatusUnknown    TrackingStatus = "unknown"
	TrackingStatusRegistered TrackingStatus = "registered"
	TrackingStatusInTransit  TrackingStatus = "in_transit"
	TrackingStatusDelivered  TrackingStatus = "delivered"
	TrackingStatusException  TrackingStatus = "exception"
)

// String implements fmt.Stringer.
func (t TrackingStatus) String() string {
	return string(t)
}

// IsValid reports whether the value is a known carrier status.
func (t TrackingStatus) IsValid() bool {
	switch t {
	case TrackingStatusUnknown, TrackingStatusRegistered, TrackingStatusInTransit,
		TrackingStatusDelivered, TrackingStatusException:
		return true
	default:
		return false
	}
}
