package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/iov-one/quorum"
)

// commands is a register of all availables commands that can be executed by
// this program. The name is used to match with the first argument given.
//
// When a cmd function is called it is given stdin, stdout and command line
// arguments except the program name and this command name. It is the
// responsibility of the command function to parse the arguments. Logs and
// error messages go to os.Stderr.
//
// Commands that change the registry state sign their request with the
// private key and run it through the same signature verification that
// authorizes every caller. For example, a two out of three approval can be
// done with:
//
//   $ quorum propose -key alice.key -id 0badc0de -class transfer -amount 10 -dest $BOB
//   $ quorum countersign -key bob.key -id 0badc0de
//
var commands = map[string]func(input io.Reader, output io.Writer, args []string) error{
	"configure":   cmdConfigure,
	"countersign": cmdCountersign,
	"init":        cmdInit,
	"keyaddr":     cmdKeyaddr,
	"keygen":      cmdKeygen,
	"pending":     cmdPending,
	"propose":     cmdPropose,
	"reconfigure": cmdReconfigure,
	"show":        cmdShow,
	"signers":     cmdSigners,
	"version":     cmdVersion,
}

func main() {
	if len(os.Args) == 1 {
		fmt.Fprintf(os.Stderr, "%s is a command line client for the weighted multisignature registry.\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Usage: %s <command> [<flags>]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nAvailable commands are:\n\t%s\n", strings.Join(availableCmds(), "\n\t"))
		fmt.Fprintf(os.Stderr, "Run '%s <command> -help' to learn more about each command.\n", os.Args[0])
		os.Exit(2)
	}
	run, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "\nAvailable commands are:\n\t%s\n", strings.Join(availableCmds(), "\n\t"))
		os.Exit(2)
	}

	// Skip two first arguments. Second argument is the command name that
	// we just consumed.
	if err := run(os.Stdin, os.Stdout, os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func availableCmds() []string {
	available := make([]string, 0, len(commands))
	for name := range commands {
		available = append(available, name)
	}
	sort.Strings(available)
	return available
}

func cmdVersion(in io.Reader, out io.Writer, args []string) error {
	quorum.GitCommit = gitHash
	_, err := fmt.Fprintln(out, quorum.Version())
	return err
}

// gitHash is set during the compilation time.
var gitHash string = ""
