package main

import (
	"fmt"

	"github.com/docopt/docopt-go"

	"github.com/dudk/sonic/pcm"
)

type driversCommand struct{}

func (cmd *driversCommand) Name() string {
	return "drivers"
}

func (cmd *driversCommand) Help() string {
	return "Show the list of available pcm drivers"
}

func (cmd *driversCommand) Run(docopt.Opts) error {
	fmt.Println("Available drivers:")
	for _, name := range pcm.Drivers() {
		fmt.Printf("\t%s\n", name)
	}
	return nil
}
