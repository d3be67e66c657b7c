package transport

import (
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
)

// UDPConfig configures the UDP transport variant: bind local IPv4
// loopback on ListenPort, send to IPv4 loopback SendPort.
type UDPConfig struct {
	ListenPort int
	SendPort   int
}

// UDP implements Transport over a loopback UDP socket: one
// packet per datagram in both directions.
type UDP struct {
	log  *logrus.Entry
	conn *net.UDPConn
	peer *net.UDPAddr

	stop chan struct{}
}

// OpenUDP binds a local socket on cfg.ListenPort and resolves the peer
// address to send to on cfg.SendPort.
func OpenUDP(cfg UDPConfig, log *logrus.Entry) (*UDP, error) {
	local := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: cfg.ListenPort}
	conn, err := net.ListenUDP("udp4", local)
	if err != nil {
		return nil, fmt.Errorf("bind udp port %d: %w", cfg.ListenPort, err)
	}

	peer := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: cfg.SendPort}

	return &UDP{
		log:  log,
		conn: conn,
		peer: peer,
		stop: make(chan struct{}),
	}, nil
}

// Send writes packet as a single datagram to the configured peer.
func (u *UDP) Send(packet []byte) error {
	n, err := u.conn.WriteToUDP(packet, u.peer)
	if err != nil {
		return fmt.Errorf("udp send: %w", err)
	}
	if n != len(packet) {
		return fmt.Errorf("udp send: short write %d/%d bytes", n, len(packet))
	}
	return nil
}

// StartReceive posts a background goroutine that reads datagrams and
// feeds each one's bytes to onData in order.
func (u *UDP) StartReceive(onData func(data []byte), onError func(err error)) error {
	go func() {
		buf := make([]byte, 65536)
		for {
			select {
			case <-u.stop:
				return
			default:
			}

			n, _, err := u.conn.ReadFromUDP(buf)
			if err != nil {
				select {
				case <-u.stop:
					return
				default:
				}
				u.log.WithError(err).Warn("udp receive failed")
				onError(fmt.Errorf("udp receive: %w", err))
				return
			}
			if n > 0 {
				onData(buf[:n])
			}
		}
	}()
	return nil
}

// Close stops the receive loop and closes the socket.
func (u *UDP) Close() error {
	close(u.stop)
	return u.conn.Close()
}
