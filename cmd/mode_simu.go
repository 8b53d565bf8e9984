package cmd

import (
	"github.com/fatih/color"
	"go.dedis.ch/kdht/peer"
)

// SimuUserInterface provides a command line interface of the program, it exposes only one peer, but there are nbNodes
// of peers running behind, all bootstrapped from the first one
func SimuUserInterface(nbNodes int) {
	nodes := startNodes(nbNodes)
	defer stopNodes(nodes)

	color.HiYellow("=======  %d nodes running\n", nbNodes)

	node := nodes[0]
	banner(node)
	menu(node)
}

func startNodes(nbNodes int) []peer.Peer {
	nodes := make([]peer.Peer, nbNodes)
	for i := 0; i < nbNodes; i++ {
		config := nodeDefaultConf(udpFac(), "127.0.0.1:0")
		node := nodeCreateWithConf(peerFac, config)
		exitOnErr(node.Start(), "failed to start node")
		nodes[i] = node
	}

	for i := 1; i < nbNodes; i++ {
		exitOnErr(nodes[i].Bootstrap(nodes[0].GetAddr()), "failed to bootstrap")
	}

	return nodes
}

func stopNodes(nodes []peer.Peer) {
	for _, n := range nodes {
		exitOnErr(n.Stop(), "failed to stop node")
	}
}
