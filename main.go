package main

import "github.com/orai-bridge/relayer/cmd"

func main() {
	cmd.Execute()
}
