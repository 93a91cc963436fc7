package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/iov-one/quorum/crypto"
)

func cmdKeygen(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Generate a new private key.

When successful a new file with hex encoded private key is created. This
command fails if the private key file already exists.
`)
		fl.PrintDefaults()
	}
	var (
		keyPathFl = keyFlag(fl)
	)
	fl.Parse(args)

	// Do not allow to overwrite already existing private key. User must
	// manually delete it first.
	if err := crypto.SavePrivateKey(crypto.GenPrivKeyEd25519(), *keyPathFl, false); err != nil {
		return fmt.Errorf("cannot save private key: %s", err)
	}
	return nil
}

func cmdKeyaddr(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Print out the hex and the bech32 address associated with your private key.
`)
		fl.PrintDefaults()
	}
	var (
		keyPathFl = keyFlag(fl)
	)
	fl.Parse(args)

	key, err := crypto.LoadPrivateKey(*keyPathFl)
	if err != nil {
		return fmt.Errorf("cannot load private key: %s", err)
	}
	addr := key.PublicKey().Address()
	bech, err := addr.Bech32(addressPrefix)
	if err != nil {
		return fmt.Errorf("cannot serialize to bech32: %s", err)
	}
	_, err = fmt.Fprintf(output, "%s\n%s\n", addr, bech)
	return err
}
