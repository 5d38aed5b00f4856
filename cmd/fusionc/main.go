// cmd/fusionc/main.go
package main

import (
	"fmt"
	"log"
	"os"

	"sentra/cmd/fusionc/commands"
)

const VERSION = "0.1.0"

// commandAliases mirrors the teacher CLI's short-alias map.
var commandAliases = map[string]string{
	"l": "list",
	"d": "demo",
	"c": "cache",
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		showUsage()
		return
	}

	cmd := args[0]
	if alias, ok := commandAliases[cmd]; ok {
		cmd = alias
	}

	if cmd == "--help" || cmd == "-h" || cmd == "help" {
		showUsage()
		return
	}
	if cmd == "--version" || cmd == "-v" || cmd == "version" {
		fmt.Println("fusionc " + VERSION)
		return
	}

	var err error
	switch cmd {
	case "list":
		err = commands.ListCommand(args[1:])
	case "demo":
		err = commands.DemoCommand(args[1:])
	case "cache":
		err = commands.CacheCommand(args[1:])
	default:
		fmt.Printf("fusionc: unknown command %q\n", cmd)
		showUsage()
		os.Exit(1)
	}

	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func showUsage() {
	fmt.Println(`fusionc - kernel-fusion JIT tracer demo

Usage:
  fusionc <command> [arguments]

Commands:
  list              list registered ufuncs and reductions
  demo [-kind=...]  run a built-in fused-kernel demo (elementwise|reduction)
  cache [-driver=... -dsn=...]  open and report on the persistent kernel cache

Aliases: l=list, d=demo, c=cache`)
}
