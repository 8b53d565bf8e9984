package project

import (
	"go.dedis.ch/kdht/peer"
	"go.dedis.ch/kdht/peer/impl"
	"go.dedis.ch/kdht/transport"
	"go.dedis.ch/kdht/transport/channel"
	"go.dedis.ch/kdht/transport/udp"
)

var peerFac peer.Factory = impl.NewPeer

var channelFac transport.Factory = channel.NewTransport
var udpFac transport.Factory = udp.NewUDP
