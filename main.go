package main

import "github.com/kozaktomas/face-labeler/cmd"

func main() {
	cmd.Execute()
}
