package server

import (
	"fmt"
	"net"
	"strings"

	"github.com/skip2/go-qrcode"
)

// LANURL returns the http URL under which addr is reachable from other
// devices on the local network.
func LANURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		host, port = "", strings.TrimPrefix(addr, ":")
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = lanIP()
	}
	return fmt.Sprintf("http://%s", net.JoinHostPort(host, port))
}

func lanIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "localhost"
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return "localhost"
}

// QRText renders url as a QR code drawn with block characters.
func QRText(url string) (string, error) {
	qr, err := qrcode.New(url, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("qr encode: %w", err)
	}
	return qr.ToSmallString(false), nil
}
