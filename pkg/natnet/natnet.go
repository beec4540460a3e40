// Package natnet decodes the OptiTrack Motive streaming protocol: the
// frame-of-data datagrams carrying per-frame rigid-body poses, and the
// server-info reply used to pick a wire-format profile.
package natnet

import (
	"fmt"

	"github.com/mocaplink/natnet/pkg/wire"
)

// MessageID tags a NatNet datagram. Only MsgFrameOfData and MsgServerInfo
// are decoded; everything else is recognized and ignored.
type MessageID uint16

const (
	MsgConnect            MessageID = 0
	MsgServerInfo         MessageID = 1
	MsgRequest            MessageID = 2
	MsgResponse           MessageID = 3
	MsgRequestModelDef    MessageID = 4
	MsgModelDef           MessageID = 5
	MsgRequestFrameOfData MessageID = 6
	MsgFrameOfData        MessageID = 7
	MsgMessageString      MessageID = 8
	MsgDisconnect         MessageID = 9
)

const (
	// DefaultDataPort is the multicast port Motive streams frame data on.
	DefaultDataPort = 1511
	// DefaultCommandPort is the unicast port Motive answers commands on.
	DefaultCommandPort = 1510
	// DefaultGroup is the multicast group Motive streams to.
	DefaultGroup = "239.255.42.99"
	// MaxDatagramSize bounds receive buffers. It is a sizing hint only;
	// decoding trusts the declared payload length, not this constant.
	MaxDatagramSize = 32 * 1024

	envelopeSize = 4
)

// splitEnvelope reads the 4-byte header and returns the payload sliced to
// exactly the declared length. A tag other than want fails with
// *UnsupportedMessageError before the length is validated, so foreign
// message types are ignored whatever their payload looks like.
func splitEnvelope(datagram []byte, want MessageID) ([]byte, error) {
	cur := wire.NewCursor(datagram)
	tag, err := cur.ReadUint16()
	if err != nil {
		return nil, err
	}
	size, err := cur.ReadUint16()
	if err != nil {
		return nil, err
	}
	if MessageID(tag) != want {
		return nil, &UnsupportedMessageError{ID: MessageID(tag)}
	}
	rest := datagram[envelopeSize:]
	if int(size) > len(rest) {
		return nil, &MalformedRecordError{
			Section: "envelope",
			Offset:  2,
			Reason:  fmt.Sprintf("declared payload %d bytes, datagram carries %d", size, len(rest)),
		}
	}
	if int(size) < len(rest) {
		return nil, &MalformedRecordError{
			Section: "envelope",
			Offset:  2,
			Reason:  fmt.Sprintf("datagram carries %d bytes past the declared payload", len(rest)-int(size)),
		}
	}
	return rest[:size], nil
}
