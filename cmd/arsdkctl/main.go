// Command arsdkctl is a CLI controller for Parrot ARSDK devices: discover
// one on the LAN, connect and run its bring-up handshake, send piloting
// commands interactively from the keyboard, and inspect device state.
package main

import (
	"fmt"
	"os"

	"github.com/postmannen/arsdk-go/cmd/arsdkctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
