package main

import "github.com/kozaktomas/face-annotator/cmd"

func main() {
	cmd.Execute()
}
