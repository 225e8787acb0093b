// Package main provides the entry point for the aegisctl CLI tool.
package main

import "github.com/turtacn/aegis/cmd/cli"

func main() {
	cli.Execute()
}
