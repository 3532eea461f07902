// conductorctl is the command-line front end for the conductord HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var serverURL string

func main() {
	root := &cobra.Command{
		Use:           "conductorctl",
		Short:         "Control a running conductord daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&serverURL, "server", "http://127.0.0.1:9889", "conductord base URL")

	root.AddCommand(
		sessionsCmd(),
		spawnCmd(),
		sendCmd(),
		outputCmd(),
		rmCmd(),
		inboxCmd(),
		approvalsCmd(),
		flowsCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
