package cmd

import (
	"net"
	"strconv"
	"strings"

	"go.dedis.ch/kdht/types"
	"golang.org/x/xerrors"
)

func addressValidator(ans interface{}) error {
	peerAddr, _ := ans.(string)
	ipAndPort := strings.Split(peerAddr, ":")
	if len(ipAndPort) != 2 {
		// The address given is invalid
		return xerrors.Errorf("Please enter a valid peer address, e.g., 127.0.0.1:4001")
	}

	ipAddr := ipAndPort[0]
	if net.ParseIP(ipAddr) == nil {
		return xerrors.Errorf("Please enter a valid peer address, e.g., 127.0.0.1:4001")
	}

	portNum := ipAndPort[1]
	portN, err := strconv.Atoi(portNum)
	if err != nil || portN < 0 || portN >= 65536 {
		return xerrors.Errorf("Please enter a valid peer address, e.g., 127.0.0.1:4001")
	}

	return nil
}

func keyValidator(ans interface{}) error {
	key, _ := ans.(string)
	if strings.TrimSpace(key) == "" {
		return xerrors.Errorf("Please enter a key, either a name or a 40 characters hex ID")
	}
	return nil
}

// parseKey returns the KUID given as a 40 characters hex string, or the
// hash of any other string.
func parseKey(s string) types.KUID {
	if len(s) == types.KUIDLength*2 {
		key, err := types.KUIDFromHex(s)
		if err == nil {
			return key
		}
	}
	return types.KUIDFromData([]byte(s))
}
