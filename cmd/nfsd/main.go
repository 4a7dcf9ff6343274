// Command nfsd runs a userspace NFSv3 server: PORTMAP v2, MOUNT v3, and
// NFSv3 listeners over a set of host directories aliased to
// client-visible paths.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
