package natnet

// Profile declares which optional wire fields the server emits. The
// frame-of-data payload carries no version tag of its own, so the shape
// must come from out-of-band knowledge: either a pinned profile or the
// server-info reply to a connect ping.
type Profile struct {
	// RigidBodyQuality widens rigid-body records from 32 to 38 bytes
	// with a mean marker error (f32) and tracking flags (i16).
	RigidBodyQuality bool
	// LabeledMarkers, ForcePlates and Devices gate the presence of the
	// respective sections between rigid bodies and the timecode.
	LabeledMarkers bool
	ForcePlates    bool
	Devices        bool
	// TrailingTiming gates the capture timing block after the timestamp:
	// camera mid exposure, data received and transmit stamps (3 f64)
	// plus the frame params (i16).
	TrailingTiming bool
}

// ProfileLegacy is the minimal shape, streams older than 2.3: 32-byte
// rigid bodies, no optional sections, nothing after the timestamp.
var ProfileLegacy = Profile{}

// ProfileV2 matches late Motive 2.x streams: bare 32-byte rigid bodies
// with labeled-marker and force-plate sections ahead of the timecode, no
// device section or timing trailer.
var ProfileV2 = Profile{
	LabeledMarkers: true,
	ForcePlates:    true,
}

// ProfileV3 matches NatNet 3.x streams: every optional field present.
var ProfileV3 = Profile{
	RigidBodyQuality: true,
	LabeledMarkers:   true,
	ForcePlates:      true,
	Devices:          true,
	TrailingTiming:   true,
}

// ProfileForVersion maps a negotiated protocol version to the wire shape
// that generation of servers emits. Labeled markers arrived with 2.3,
// force plates with 2.9, everything else with 3.0.
func ProfileForVersion(major, minor uint8) Profile {
	switch {
	case major >= 3:
		return ProfileV3
	case major == 2 && minor >= 9:
		return ProfileV2
	case major == 2 && minor >= 3:
		return Profile{LabeledMarkers: true}
	default:
		return ProfileLegacy
	}
}
