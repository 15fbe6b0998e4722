package main

import (
	"fmt"
	"os"
)

func main() {
	root, err := newRootCmd()
	if err == nil {
		err = root.Execute()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
