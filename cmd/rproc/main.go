// Command rproc loads firmware into a remote processor and brings up the
// shared memory transport to it.
package main

import (
	"fmt"
	"os"

	"github.com/tebeka/atexit"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "rproc: %v\n", err)
		atexit.Exit(1)
	}
	atexit.Exit(0)
}
