package natnet

import "github.com/mocaplink/natnet/pkg/wire"

const serverNameSize = 256

// ServerInfo is the reply to a connect ping: who the server is and which
// protocol generation it speaks.
type ServerInfo struct {
	AppName         string
	AppVersion      [4]uint8
	ProtocolVersion [4]uint8
}

// Profile returns the wire-format profile for the server's protocol
// version.
func (si *ServerInfo) Profile() Profile {
	return ProfileForVersion(si.ProtocolVersion[0], si.ProtocolVersion[1])
}

// DecodeServerInfo decodes a server-info datagram. Servers keep appending
// connection details after the version block across releases, so bytes
// past it are ignored rather than rejected.
func DecodeServerInfo(datagram []byte) (*ServerInfo, error) {
	payload, err := splitEnvelope(datagram, MsgServerInfo)
	if err != nil {
		return nil, err
	}
	cur := wire.NewCursor(payload)

	si := new(ServerInfo)
	if si.AppName, err = cur.ReadFixedString(serverNameSize); err != nil {
		return nil, err
	}
	for i := range si.AppVersion {
		if si.AppVersion[i], err = cur.ReadUint8(); err != nil {
			return nil, err
		}
	}
	for i := range si.ProtocolVersion {
		if si.ProtocolVersion[i], err = cur.ReadUint8(); err != nil {
			return nil, err
		}
	}
	return si, nil
}
