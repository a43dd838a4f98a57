package main

import (
	"fmt"
	"os"

	"github.com/mfenderov/cvf-papers/cmd/cvf-papers/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
