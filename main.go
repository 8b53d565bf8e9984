package main

import (
	"log"
	"os"
	"strconv"

	"go.dedis.ch/kdht/cmd"
)

const usage = "Run the program as `go run . [address]` for normal mode, `go run . simu " +
	"$num_of_nodes` for simulation mode, or `go run . script $file [address]` to run a script"

func main() {
	// Enters the command line interface
	argsWithoutProg := os.Args[1:]

	if len(argsWithoutProg) == 0 {
		// Normal node, just initiate one node
		cmd.UserInterface("127.0.0.1:0")
		return
	}

	switch argsWithoutProg[0] {
	case "simu":
		// Run in simulation mode
		nbNodes := 6
		if len(argsWithoutProg) > 1 {
			n, err := strconv.Atoi(argsWithoutProg[1])
			if err != nil || n < 1 {
				log.Fatal(usage)
			}
			nbNodes = n
		}
		cmd.SimuUserInterface(nbNodes)

	case "script":
		if len(argsWithoutProg) < 2 {
			log.Fatal(usage)
		}
		addr := "127.0.0.1:0"
		if len(argsWithoutProg) > 2 {
			addr = argsWithoutProg[2]
		}
		cmd.ScriptInterface(argsWithoutProg[1], addr)

	default:
		cmd.UserInterface(argsWithoutProg[0])
	}
}
