package socket

import (
	"net"
	"strconv"

	"golang.org/x/net/ipv4"
)

func ipv4PacketConn(conn *net.UDPConn) *ipv4.PacketConn {
	return ipv4.NewPacketConn(conn)
}

func setIntOption(value string, apply func(int) error) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return err
	}
	return apply(n)
}

func setBoolOption(value string, apply func(bool) error) error {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return err
	}
	return apply(b)
}
