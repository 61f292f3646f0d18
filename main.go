package main

import "github.com/Tiliavir/rosterctl/cmd"

func main() {
	cmd.Execute()
}
