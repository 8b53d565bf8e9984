package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"go.dedis.ch/kdht/peer"
)

const (
	actionBootstrap = "🚪 bootstrap from a known node"
	actionPing      = "🏓 ping a node"
	actionPut       = "📦 put a value"
	actionGet       = "🔎 get a value"
	actionLookup    = "🧭 look up the closest nodes to a key"
	actionTable     = "📖 show routing table and local values"
	actionExit      = "👋 exit"
)

// menu is the loop of actions of a running node. It returns false if the
// prompt could not be shown.
func menu(node peer.Peer) bool {
	prompt := &survey.Select{
		Message: "What do you want to do ?",
		Options: []string{
			actionBootstrap,
			actionPing,
			actionPut,
			actionGet,
			actionLookup,
			actionTable,
			actionExit},
	}

	actions := map[string]func(peer.Peer) error{
		actionBootstrap: bootstrap,
		actionPing:      ping,
		actionPut:       put,
		actionGet:       get,
		actionLookup:    lookup,
		actionTable:     showTable,
	}

	var action string
	for {
		err := survey.AskOne(prompt, &action)
		if err != nil {
			fmt.Println(err)
			return false
		}

		if action == actionExit {
			color.HiYellow("=======  Bye 👋")
			return true
		}

		err = actions[action](node)
		if err != nil {
			log.Fatalf("failed to %s: %v", action, err)
		}
	}
}

func banner(node peer.Peer) {
	color.HiYellow("================================================\n"+
		"=======  Node started!\n"+
		"=======  UDP Address := %s\n"+
		"=======  Node ID     := %s\n"+
		"================================================\n",
		node.GetAddr(), node.GetContact().ID)
}

func exitOnErr(err error, msg string) {
	if err != nil {
		log.Printf("%s: %v", msg, err)
		os.Exit(1)
	}
}
