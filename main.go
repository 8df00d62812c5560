package main

import (
	"os"

	"grimm.is/originguard/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
