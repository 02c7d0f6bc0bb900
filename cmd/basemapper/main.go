// Command basemapper acquires pre/post-event satellite basemap mosaics for
// configured study areas.
package main

import (
	"fmt"
	"os"

	"github.com/basemapper/basemapper/internal/cli"
)

func main() {
	if err := cli.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
