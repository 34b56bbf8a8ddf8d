// Command wikisync keeps wiki spaces on disk searchable and pushes every
// change to connected clients in real time.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
