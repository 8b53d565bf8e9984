package cmd

import (
	"go.dedis.ch/kdht/peer"
	"go.dedis.ch/kdht/peer/impl"
	"go.dedis.ch/kdht/transport"
	"go.dedis.ch/kdht/transport/udp"
)

var peerFac peer.Factory = impl.NewPeer
var udpFac transport.Factory = udp.NewUDP

// UserInterface provides a command line interface of the program, in the normal mode
func UserInterface(addr string) {
	config := nodeDefaultConf(udpFac(), addr)
	node := nodeCreateWithConf(peerFac, config)

	exitOnErr(node.Start(), "failed to start node")
	defer func() {
		exitOnErr(node.Stop(), "failed to stop node")
	}()

	banner(node)
	menu(node)
}
