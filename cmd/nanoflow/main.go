package main

import (
	"fmt"
	"os"

	flowerr "github.com/coffersTech/nanoflow/pkg/errors"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 for bad input and 1 for everything else.
func exitCode(err error) int {
	if flowerr.IsInvalidInput(err) {
		return 2
	}
	return 1
}
