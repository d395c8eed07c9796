package main

import "github.com/kozaktomas/face-counter/cmd"

func main() {
	cmd.Execute()
}
