package main

import "github.com/agentic-research/dmpath/cmd"

func main() {
	cmd.Execute()
}
