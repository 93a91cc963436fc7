package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"github.com/iov-one/quorum"
	"github.com/iov-one/quorum/x/multisig"
)

// flAddress returns a value that is being initialized with given default value
// and optionally overwritten by a command line argument if provided. This
// function follows Go's flag package convention.
// If given value cannot be deserialized to required type, process is
// terminated.
func flAddress(fl *flag.FlagSet, name, defaultVal, usage string) *quorum.Address {
	var a quorum.Address
	if defaultVal != "" {
		var err error
		a, err = quorum.ParseAddress(defaultVal)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Cannot parse %q quorum.Address flag value. %s", name, err)
			os.Exit(2)
		}
	}
	fl.Var(&a, name, usage)
	return &a
}

// flHex returns a value that is being initialized with given default value
// and optionally overwritten by a command line argument if provided. This
// function follows Go's flag package convention.
// If given value cannot be deserialized to required type, process is
// terminated.
func flHex(fl *flag.FlagSet, name, defaultVal, usage string) *[]byte {
	var b flagbyte
	if defaultVal != "" {
		if err := b.Set(defaultVal); err != nil {
			fmt.Fprintf(os.Stderr, "Cannot parse %q hex encoded flag value. %s", name, err)
			os.Exit(2)
		}
	}
	fl.Var(&b, name, usage)
	return (*[]byte)(&b)
}

type flagbyte []byte

func (b flagbyte) String() string {
	return hex.EncodeToString(b)
}

func (b *flagbyte) Set(raw string) error {
	val, err := hex.DecodeString(raw)
	if err != nil {
		return err
	}
	*b = val
	return nil
}

// flClass returns an action class value that is being initialized with given
// default value and optionally overwritten by a command line argument if
// provided.
// If given value cannot be deserialized to required type, process is
// terminated.
func flClass(fl *flag.FlagSet, name, defaultVal, usage string) *multisig.ActionClass {
	c, err := multisig.ParseActionClass(defaultVal)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot parse %q action class flag value. %s", name, err)
		os.Exit(2)
	}
	fc := flagclass(c)
	fl.Var(&fc, name, usage)
	return (*multisig.ActionClass)(&fc)
}

type flagclass multisig.ActionClass

func (c flagclass) String() string {
	return multisig.ActionClass(c).String()
}

func (c *flagclass) Set(raw string) error {
	val, err := multisig.ParseActionClass(raw)
	if err != nil {
		return err
	}
	*c = flagclass(val)
	return nil
}

// flagDie terminates the program when a flag validation fails. Message is
// written to the standard error output.
func flagDie(description string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, description, args...)
	fmt.Fprintln(os.Stderr)
	os.Exit(2)
}
