package cmd

import (
	"context"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"go.dedis.ch/kdht/peer"
	"go.dedis.ch/kdht/registry/standard"
	"go.dedis.ch/kdht/storage/inmemory"
	"go.dedis.ch/kdht/transport"
	"go.dedis.ch/kdht/types"
	"golang.org/x/xerrors"
)

// opTimeout bounds how long the CLI waits for an operation.
const opTimeout = time.Minute

// nodeDefaultConf returns the default configuration of a node
func nodeDefaultConf(trans transport.Transport, addr string) peer.Configuration {
	socket, err := trans.CreateSocket(addr)
	if err != nil {
		panic(err)
	}

	var config peer.Configuration
	config.Socket = socket
	config.MessageRegistry = standard.NewRegistry()
	config.Storage = inmemory.NewDatabase(0)
	config.NodeID = types.RandomKUID()
	config.K = 20
	config.Alpha = 3
	config.RequestTimeout = time.Second * 5
	config.PutDefaults = peer.PutConfig{
		LookupTimeout: time.Second * 30,
		StoreTimeout:  time.Second * 5,
		Parallelism:   20,
	}
	config.RefreshInterval = time.Hour
	config.RepublishInterval = time.Hour
	config.StoreForward = true
	config.BackoffBootstrap = peer.Backoff{
		Initial: time.Second,
		Factor:  2,
		Retry:   4,
	}
	config.LogLevel = zerolog.WarnLevel
	return config
}

// nodeCreateWithConf creates a node with the specified config
func nodeCreateWithConf(f peer.Factory, config peer.Configuration) peer.Peer {
	return f(config)
}

func askAddress(message string) (string, error) {
	var addr string
	err := survey.AskOne(
		&survey.Input{Message: message},
		&addr,
		survey.WithValidator(addressValidator))
	if err != nil {
		return "", xerrors.Errorf("failed to get the answer: %v", err)
	}
	return addr, nil
}

func askKey() (types.KUID, error) {
	var key string
	err := survey.AskOne(
		&survey.Input{Message: "Enter the key (name or hex ID): "},
		&key,
		survey.WithValidator(keyValidator))
	if err != nil {
		return types.KUID{}, xerrors.Errorf("failed to get the answer: %v", err)
	}
	return parseKey(key), nil
}

// bootstrap joins a network through a known node
func bootstrap(node peer.Peer) error {
	addr, err := askAddress("Enter the bootstrap node's address: ")
	if err != nil {
		return err
	}

	err = node.Bootstrap(addr)
	if err != nil {
		color.Red("\nFailed to bootstrap: %v\n\n", err)
		return nil
	}

	color.Yellow("\nBootstrapped, %d contacts known\n\n", len(node.GetRoutingTable()))
	return nil
}

// ping pings a node
func ping(node peer.Peer) error {
	addr, err := askAddress("Enter the node's address: ")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := node.Ping(addr).Get(ctx)
	if err != nil {
		color.Red("\nPing failed: %v\n\n", err)
		return nil
	}

	color.Yellow("\n%s answered in %s\n\n", res.Contact, res.RTT)
	return nil
}

// put stores a value in the DHT
func put(node peer.Peer) error {
	key, err := askKey()
	if err != nil {
		return err
	}

	var content string
	err = survey.AskOne(&survey.Input{Message: "Enter the value: "}, &content)
	if err != nil {
		return xerrors.Errorf("failed to get the answer: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	f := node.Put(key, types.Value{Content: []byte(content)}, peer.PutConfig{})

	res, err := f.Get(ctx)
	if xerrors.Is(err, context.DeadlineExceeded) {
		f.Cancel()
	}
	if err != nil {
		color.Red("\nPut failed: %v\n", err)
	}

	color.Yellow("%s\n", putTree(res))
	return nil
}

// get reads a value from the DHT
func get(node peer.Peer) error {
	key, err := askKey()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := node.Get(key).Get(ctx)
	if err != nil {
		color.Red("\nGet failed: %v\n\n", err)
		return nil
	}

	color.Yellow("\n%s := %q\n", key.Short(), res.Value.Value.Content)
	color.Yellow("       from %s after %d hops\n\n", res.Source, res.Hops)
	return nil
}

// lookup finds the closest nodes to a key
func lookup(node peer.Peer) error {
	key, err := askKey()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := node.Lookup(key).Get(ctx)
	if err != nil {
		color.Red("\nLookup failed: %v\n\n", err)
		return nil
	}

	color.Yellow("%s\n", lookupTree(res))
	return nil
}

// showTable prints the routing table and the local values
func showTable(node peer.Peer) error {
	color.Yellow("%s\n", tableTree(node.GetContact(), node.GetRoutingTable(), node.GetLocalValues()))
	return nil
}
