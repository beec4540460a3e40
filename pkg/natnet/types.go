package natnet

// Vec3 is a position in meters, (x, y, z).
type Vec3 [3]float32

// Quat is an orientation quaternion, (qx, qy, qz, qw).
type Quat [4]float32

// MarkerSet is a named group of markers. Positions are consumed for byte
// accounting and discarded; only the name and count survive.
type MarkerSet struct {
	Name        string
	MarkerCount int32
}

// RigidBody is one tracked object's pose for one frame. MeanError and
// TrackingFlags are populated only when the profile carries quality fields;
// legacy streams leave them zero.
type RigidBody struct {
	ID            int32
	Position      Vec3
	Orientation   Quat
	MeanError     float32
	TrackingFlags int16
}

// Timing holds the trailing capture timing block newer servers append.
// All zero when the profile does not carry it.
type Timing struct {
	CameraMidExposure float64
	DataReceived      float64
	Transmit          float64
	Params            int16
}

// Frame is one decoded frame-of-data datagram. Frames are freshly
// allocated per datagram and never mutated after return; a rigid body
// with the same ID in two frames is a different value each time.
type Frame struct {
	FrameNumber          int32
	MarkerSets           []MarkerSet
	UnlabeledMarkerCount int32
	RigidBodies          []RigidBody
	Timestamp            float64
	Timing               Timing
}
