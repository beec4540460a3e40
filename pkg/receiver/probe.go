package receiver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/mocaplink/natnet/pkg/natnet"
)

// Probe asks the server on the command port to describe itself and
// returns the parsed reply. Use it to pick the decode profile before
// starting a receiver. The context bounds the whole exchange.
func Probe(ctx context.Context, serverAddr string) (*natnet.ServerInfo, error) {
	addr, err := net.ResolveUDPAddr("udp4", serverAddr)
	if err != nil {
		return nil, fmt.Errorf("server %q: %w", serverAddr, err)
	}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if _, err := conn.Write(natnet.AppendConnect(nil)); err != nil {
		return nil, err
	}

	msg := make([]byte, natnet.MaxDatagramSize)
	for {
		n, err := conn.Read(msg)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		info, err := natnet.DecodeServerInfo(msg[:n])
		if err != nil {
			var um *natnet.UnsupportedMessageError
			if errors.As(err, &um) {
				// chatty servers answer with other command traffic
				// first; keep waiting for the description
				continue
			}
			return nil, err
		}
		return info, nil
	}
}
