// Command wirecheck runs the protocol test suite against a peer.
//
//	wirecheck server <port>
//	wirecheck client <ip> <port>
//
// The server runs the requesting half of every exchange, the client the
// responding half. Exit codes: 0 on graceful shutdown, 1 on a failed exchange,
// 98 on bind failure, 111 on connect failure.
package main

import "os"

func main() {
	os.Exit(execute(os.Args[1:]))
}
