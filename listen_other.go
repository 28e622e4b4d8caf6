//go:build !unix

package wirecheck

import "net"

func listenConfig() net.ListenConfig {
	return net.ListenConfig{}
}
