package natnet

import (
	"fmt"

	"github.com/mocaplink/natnet/pkg/wire"
)

const (
	markerSize        = 12 // position, 3 f32
	rigidBodyBaseSize = 32 // id i32, position 3 f32, orientation 4 f32
	qualitySize       = 6  // mean error f32, tracking flags i16
	labeledMarkerSize = 26
	timecodeSize      = 8
)

// Decoder turns frame-of-data datagrams into Frames for one wire-format
// profile. It keeps no state between calls and is safe for concurrent use.
type Decoder struct {
	profile Profile
}

func NewDecoder(p Profile) *Decoder {
	return &Decoder{profile: p}
}

// DecodePacket decodes one whole datagram. Datagrams tagged with anything
// but frame-of-data fail with *UnsupportedMessageError and their payload
// is never touched.
func (d *Decoder) DecodePacket(datagram []byte) (*Frame, error) {
	payload, err := splitEnvelope(datagram, MsgFrameOfData)
	if err != nil {
		return nil, err
	}
	return d.decodeFrame(wire.NewCursor(payload))
}

// readCount reads a record count and rejects values that cannot fit in the
// remaining payload, recordMin being the smallest possible record.
func readCount(cur *wire.Cursor, section string, recordMin int) (int, error) {
	off := cur.Offset()
	n, err := cur.ReadInt32()
	if err != nil {
		return 0, err
	}
	if n < 0 || int64(n)*int64(recordMin) > int64(cur.Remaining()) {
		return 0, &MalformedRecordError{
			Section: section,
			Offset:  off,
			Reason:  fmt.Sprintf("count %d cannot fit in %d remaining bytes", n, cur.Remaining()),
		}
	}
	return int(n), nil
}

// decodeFrame walks the frame-of-data sections in wire order. Everything
// after the rigid bodies is optional: older servers end the payload at a
// section boundary and the missing fields keep their zero values. Running
// out mid-section is still an error, as is any byte left after the full
// trailer.
func (d *Decoder) decodeFrame(cur *wire.Cursor) (*Frame, error) {
	f := new(Frame)

	var err error
	if f.FrameNumber, err = cur.ReadInt32(); err != nil {
		return nil, err
	}

	nSets, err := readCount(cur, "marker sets", 5)
	if err != nil {
		return nil, err
	}
	if nSets > 0 {
		f.MarkerSets = make([]MarkerSet, 0, nSets)
	}
	for i := 0; i < nSets; i++ {
		set, err := decodeMarkerSet(cur)
		if err != nil {
			return nil, fmt.Errorf("marker set %d of %d: %w", i, nSets, err)
		}
		f.MarkerSets = append(f.MarkerSets, set)
	}

	nUnlabeled, err := readCount(cur, "unlabeled markers", markerSize)
	if err != nil {
		return nil, err
	}
	if err := cur.Skip(nUnlabeled * markerSize); err != nil {
		return nil, err
	}
	f.UnlabeledMarkerCount = int32(nUnlabeled)

	nBodies, err := readCount(cur, "rigid bodies", d.rigidBodySize())
	if err != nil {
		return nil, err
	}
	if nBodies > 0 {
		f.RigidBodies = make([]RigidBody, 0, nBodies)
	}
	for i := 0; i < nBodies; i++ {
		rb, err := d.decodeRigidBody(cur)
		if err != nil {
			return nil, fmt.Errorf("rigid body %d of %d: %w", i, nBodies, err)
		}
		f.RigidBodies = append(f.RigidBodies, rb)
	}

	if cur.Remaining() == 0 {
		return f, nil
	}
	skelOff := cur.Offset()
	nSkeletons, err := readCount(cur, "skeletons", 1)
	if err != nil {
		return nil, err
	}
	if nSkeletons > 0 {
		return nil, &UnsupportedSectionError{Section: "skeletons", Count: nSkeletons, Offset: skelOff}
	}

	if d.profile.LabeledMarkers {
		if cur.Remaining() == 0 {
			return f, nil
		}
		nLabeled, err := readCount(cur, "labeled markers", labeledMarkerSize)
		if err != nil {
			return nil, err
		}
		if err := cur.Skip(nLabeled * labeledMarkerSize); err != nil {
			return nil, err
		}
	}

	if d.profile.ForcePlates {
		if cur.Remaining() == 0 {
			return f, nil
		}
		if err := skipChannelSection(cur, "force plates"); err != nil {
			return nil, err
		}
	}

	if d.profile.Devices {
		if cur.Remaining() == 0 {
			return f, nil
		}
		if err := skipChannelSection(cur, "devices"); err != nil {
			return nil, err
		}
	}

	if cur.Remaining() == 0 {
		return f, nil
	}
	if err := cur.Skip(timecodeSize); err != nil {
		return nil, err
	}

	if cur.Remaining() == 0 {
		return f, nil
	}
	if f.Timestamp, err = cur.ReadFloat64(); err != nil {
		return nil, err
	}

	if d.profile.TrailingTiming {
		if cur.Remaining() == 0 {
			return f, nil
		}
		if f.Timing.CameraMidExposure, err = cur.ReadFloat64(); err != nil {
			return nil, err
		}
		if f.Timing.DataReceived, err = cur.ReadFloat64(); err != nil {
			return nil, err
		}
		if f.Timing.Transmit, err = cur.ReadFloat64(); err != nil {
			return nil, err
		}
		if f.Timing.Params, err = cur.ReadInt16(); err != nil {
			return nil, err
		}
	}

	if n := cur.Remaining(); n != 0 {
		return nil, &MalformedRecordError{
			Section: "frame",
			Offset:  cur.Offset(),
			Reason:  fmt.Sprintf("%d bytes past the end of the trailer", n),
		}
	}
	return f, nil
}

// decodeMarkerSet consumes exactly len(name)+1+4+12*markerCount bytes.
func decodeMarkerSet(cur *wire.Cursor) (MarkerSet, error) {
	var set MarkerSet
	nameOff := cur.Offset()
	name, err := cur.ReadCString()
	if err != nil {
		return set, err
	}
	if name == "" {
		return set, &MalformedRecordError{Section: "marker set", Offset: nameOff, Reason: "empty name"}
	}
	set.Name = name

	count, err := readCount(cur, "markers", markerSize)
	if err != nil {
		return set, err
	}
	if err := cur.Skip(count * markerSize); err != nil {
		return set, err
	}
	set.MarkerCount = int32(count)
	return set, nil
}

func (d *Decoder) rigidBodySize() int {
	if d.profile.RigidBodyQuality {
		return rigidBodyBaseSize + qualitySize
	}
	return rigidBodyBaseSize
}

// decodeRigidBody consumes 32 bytes, or 38 under a quality profile.
func (d *Decoder) decodeRigidBody(cur *wire.Cursor) (RigidBody, error) {
	var rb RigidBody
	var err error
	if rb.ID, err = cur.ReadInt32(); err != nil {
		return rb, err
	}
	if err := cur.ReadFloat32s(rb.Position[:]); err != nil {
		return rb, err
	}
	if err := cur.ReadFloat32s(rb.Orientation[:]); err != nil {
		return rb, err
	}
	if !d.profile.RigidBodyQuality {
		return rb, nil
	}
	if rb.MeanError, err = cur.ReadFloat32(); err != nil {
		return rb, err
	}
	rb.TrackingFlags, err = cur.ReadInt16()
	return rb, err
}

// skipChannelSection walks a self-describing analog section: per device an
// id and a channel count, per channel a frame count and that many f32
// samples. Force plates and peripheral devices share this layout.
func skipChannelSection(cur *wire.Cursor, section string) error {
	nDevices, err := readCount(cur, section, 8)
	if err != nil {
		return err
	}
	for i := 0; i < nDevices; i++ {
		if _, err := cur.ReadInt32(); err != nil {
			return fmt.Errorf("%s record %d: %w", section, i, err)
		}
		nChannels, err := readCount(cur, section+" channels", 4)
		if err != nil {
			return fmt.Errorf("%s record %d: %w", section, i, err)
		}
		for c := 0; c < nChannels; c++ {
			nFrames, err := readCount(cur, section+" channel frames", 4)
			if err != nil {
				return fmt.Errorf("%s record %d channel %d: %w", section, i, c, err)
			}
			if err := cur.Skip(nFrames * 4); err != nil {
				return fmt.Errorf("%s record %d channel %d: %w", section, i, c, err)
			}
		}
	}
	return nil
}
