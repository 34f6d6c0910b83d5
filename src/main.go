package main

import "github.com/zvdy/emrfleet/src/cmd"

var version = "dev"

func main() {
	cmd.SetVersion(version)
	cmd.Execute()
}
