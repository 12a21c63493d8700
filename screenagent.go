package main

import (
	cli "github.com/connct/screenagent/cmd/screenagent"
)

func main() {
	cli.Execute()
}
