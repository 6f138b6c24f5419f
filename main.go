package main

import "github.com/smskit/sim-gateway/cmd"

func main() {
	cmd.Execute()
}
