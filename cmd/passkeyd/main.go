// Command passkeyd is the passkey credential authority server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "passkeyd",
		Short: "Passkey credential authority server",
	}
	root.AddCommand(commandServe())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
