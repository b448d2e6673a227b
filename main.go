package main

import (
	"github.com/sidkik/sshcp-v1/cmd"
	"github.com/sidkik/sshcp-v1/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}
