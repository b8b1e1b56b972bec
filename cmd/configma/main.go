package main

import (
	"os"

	"github.com/pterm/pterm"

	"github.com/configma/configma/pkg/privilege"
)

func main() {
	// Privilege detection runs before anything else: when started through
	// sudo the process drops its effective credentials to the invoking
	// user here and only re-acquires root per filesystem operation.
	root, invoker, err := privilege.Detect()
	if err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
	rootIdentity = root
	invokerIdentity = invoker

	if err := Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}
