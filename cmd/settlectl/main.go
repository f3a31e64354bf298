// Command settlectl is the operator toolbox for settled: key generation,
// address derivation, development tokens, genesis templates and offline fee
// quotes.
package main

import (
	"fmt"
	"io"
	"os"
)

type command struct {
	name    string
	summary string
	run     func(args []string, out io.Writer) error
}

var commands = []command{
	{"keygen", "Generate an account key and write it to an encrypted keystore", runKeygen},
	{"address", "Derive a module address from a label or convert between encodings", runAddress},
	{"token", "Sign a bearer token for the settled API", runToken},
	{"genesis", "Write a genesis template", runGenesis},
	{"fees", "Price a settlement offline", runFees},
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(1)
	}
	for _, cmd := range commands {
		if cmd.name == os.Args[1] {
			if err := cmd.run(os.Args[2:], os.Stdout); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}
	usage(os.Stderr)
	os.Exit(1)
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "settlectl <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-8s %s\n", cmd.name, cmd.summary)
	}
}
