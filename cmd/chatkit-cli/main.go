package main

import "github.com/tradepost/chatkit/cmd/chatkit-cli/cmd"

func main() {
	cmd.Execute()
}
