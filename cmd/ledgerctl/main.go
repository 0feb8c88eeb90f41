package main

import (
	"fmt"
	"os"
)

var Commit,
	BuildTime string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
