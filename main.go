package main

import "github.com/driftwatch/driftwatch/cmd"

func main() {
	cmd.Execute()
}
