package main

import "github.com/encodeous/aodv/cmd"

func main() {
	cmd.Execute()
}
