package main

import (
	"fmt"
	"os"

	"github.com/docopt/docopt-go"
)

const usage = `Sonic plays audio graphs through pcm drivers.

Usage:
    sonic play [--driver=<name>] [--device=<name>] [--seconds=<s>]
        [--freq=<hz>] [--capture=<wav>] [--config=<yaml>] [<wav>]
    sonic drivers
    sonic -h | --help

Options:
    -h --help          Show this screen.
    --driver=<name>    PCM driver [default: null].
    --device=<name>    Device name, default device if empty.
    --seconds=<s>      Stop after seconds, run until interrupted if zero [default: 0].
    --freq=<hz>        Sine frequency when no wave file is provided [default: 440].
    --capture=<wav>    Mirror output into wave file.
    --config=<yaml>    Engine config file.`

type command interface {
	Name() string
	Help() string
	Run(opts docopt.Opts) error
}

var (
	successExitCode = 0
	errorExitCode   = 1
	commands        = []command{&playCommand{}, &driversCommand{}}
)

type config struct {
	args []string
}

func (config *config) run() int {
	parser := &docopt.Parser{HelpHandler: docopt.PrintHelpOnly}
	opts, err := parser.ParseArgs(usage, config.args, "")
	if err != nil {
		return errorExitCode
	}
	for _, cmd := range commands {
		if ok, _ := opts.Bool(cmd.Name()); !ok {
			continue
		}
		if err := cmd.Run(opts); err != nil {
			fmt.Printf("Command failed: %v\n", err)
			return errorExitCode
		}
		return successExitCode
	}
	printUsage()
	return errorExitCode
}

func main() {
	c := config{
		args: os.Args[1:],
	}
	os.Exit(c.run())
}

func printUsage() {
	fmt.Println(usage)
	fmt.Println()
	fmt.Println("Commands:")
	for _, cmd := range commands {
		fmt.Printf("\t%s\t%s\n", cmd.Name(), cmd.Help())
	}
}
