package natnet

import (
	"encoding/binary"
	"fmt"
	"math"
)

// AppendFrame appends a complete frame-of-data datagram (envelope plus
// payload) shaped for the given profile. Marker positions are zero-filled
// to honor the counts; sections outside the Frame model (labeled markers,
// force plates, devices) are emitted empty. A frame too large for the u16
// length field is refused rather than wrapped.
func AppendFrame(dst []byte, f *Frame, p Profile) ([]byte, error) {
	dst = binary.LittleEndian.AppendUint16(dst, uint16(MsgFrameOfData))
	sizeAt := len(dst)
	dst = binary.LittleEndian.AppendUint16(dst, 0)
	start := len(dst)

	dst = binary.LittleEndian.AppendUint32(dst, uint32(f.FrameNumber))

	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(f.MarkerSets)))
	for _, set := range f.MarkerSets {
		dst = append(dst, set.Name...)
		dst = append(dst, 0)
		dst = binary.LittleEndian.AppendUint32(dst, uint32(set.MarkerCount))
		dst = appendZeros(dst, int(set.MarkerCount)*markerSize)
	}

	dst = binary.LittleEndian.AppendUint32(dst, uint32(f.UnlabeledMarkerCount))
	dst = appendZeros(dst, int(f.UnlabeledMarkerCount)*markerSize)

	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(f.RigidBodies)))
	for _, rb := range f.RigidBodies {
		dst = binary.LittleEndian.AppendUint32(dst, uint32(rb.ID))
		for _, v := range rb.Position {
			dst = appendFloat32(dst, v)
		}
		for _, v := range rb.Orientation {
			dst = appendFloat32(dst, v)
		}
		if p.RigidBodyQuality {
			dst = appendFloat32(dst, rb.MeanError)
			dst = binary.LittleEndian.AppendUint16(dst, uint16(rb.TrackingFlags))
		}
	}

	dst = binary.LittleEndian.AppendUint32(dst, 0) // skeletons
	if p.LabeledMarkers {
		dst = binary.LittleEndian.AppendUint32(dst, 0)
	}
	if p.ForcePlates {
		dst = binary.LittleEndian.AppendUint32(dst, 0)
	}
	if p.Devices {
		dst = binary.LittleEndian.AppendUint32(dst, 0)
	}

	dst = appendZeros(dst, timecodeSize)
	dst = appendFloat64(dst, f.Timestamp)
	if p.TrailingTiming {
		dst = appendFloat64(dst, f.Timing.CameraMidExposure)
		dst = appendFloat64(dst, f.Timing.DataReceived)
		dst = appendFloat64(dst, f.Timing.Transmit)
		dst = binary.LittleEndian.AppendUint16(dst, uint16(f.Timing.Params))
	}

	if payload := len(dst) - start; payload > math.MaxUint16 {
		return nil, &MalformedRecordError{
			Section: "envelope",
			Offset:  envelopeSize - 2,
			Reason:  fmt.Sprintf("payload of %d bytes exceeds the length field", payload),
		}
	}
	binary.LittleEndian.PutUint16(dst[sizeAt:], uint16(len(dst)-start))
	return dst, nil
}

// AppendConnect appends the 4-byte connect ping a client sends to the
// command port to solicit a server-info reply.
func AppendConnect(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, uint16(MsgConnect))
	return binary.LittleEndian.AppendUint16(dst, 0)
}

// AppendServerInfo appends a server-info datagram carrying the application
// name block and the app and protocol versions.
func AppendServerInfo(dst []byte, si *ServerInfo) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, uint16(MsgServerInfo))
	dst = binary.LittleEndian.AppendUint16(dst, serverNameSize+8)

	name := si.AppName
	if len(name) >= serverNameSize {
		name = name[:serverNameSize-1]
	}
	dst = append(dst, name...)
	dst = appendZeros(dst, serverNameSize-len(name))
	dst = append(dst, si.AppVersion[:]...)
	return append(dst, si.ProtocolVersion[:]...)
}

func appendFloat32(dst []byte, v float32) []byte {
	return binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
}

func appendFloat64(dst []byte, v float64) []byte {
	return binary.LittleEndian.AppendUint64(dst, math.Float64bits(v))
}

func appendZeros(dst []byte, n int) []byte {
	return append(dst, make([]byte, n)...)
}
