package main

import (
	"fmt"
	"os"

	"github.com/sheerbytes/bytebridge/internal/cli/receiver"
	"github.com/sheerbytes/bytebridge/internal/cli/sender"
	"github.com/sheerbytes/bytebridge/internal/termio"
)

const version = "v0.1.0"

func main() {
	termio.Init()
	defer termio.Flush()

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		return
	}
	if args[0] == "version" || hasVersionFlag(args[:1]) {
		fmt.Fprintf(termio.Stdout(), "bridge %s\n", version)
		return
	}

	switch args[0] {
	case "share":
		sender.Run(args[1:])
	case "fetch":
		receiver.Run(args[1:])
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(termio.Stderr(), "unknown command: %s\n", args[0])
		printUsage()
		termio.Flush()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Fprintln(termio.Stderr(), "usage: bridge <command> [args]")
	fmt.Fprintln(termio.Stderr(), "commands:")
	fmt.Fprintln(termio.Stderr(), "  share   offer one file and print its share link")
	fmt.Fprintln(termio.Stderr(), "  fetch   download the file behind a share link")
	fmt.Fprintln(termio.Stderr(), "  version print the version")
	fmt.Fprintln(termio.Stderr(), "quick examples:")
	fmt.Fprintln(termio.Stderr(), "  bridge share ./report.pdf")
	fmt.Fprintln(termio.Stderr(), "  bridge fetch 'http://localhost:3000/?peerId=...' --out ./downloads")
	fmt.Fprintln(termio.Stderr(), "  bridge share --transport quic --advertise 203.0.113.7:4500 ./report.pdf")
	fmt.Fprintln(termio.Stderr(), "to learn detailed usage:")
	fmt.Fprintln(termio.Stderr(), "  bridge share --help")
	fmt.Fprintln(termio.Stderr(), "  bridge fetch --help")
}

func hasVersionFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--version" || arg == "-v" {
			return true
		}
	}
	return false
}
