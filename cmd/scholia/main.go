// Package main provides the entry point for the scholia CLI.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/scholia-dev/scholia/cmd/scholia/cmd"
	scherr "github.com/scholia-dev/scholia/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		var se *scherr.ScholiaError
		if errors.As(err, &se) {
			fmt.Fprint(os.Stderr, scherr.FormatForCLI(se))
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
