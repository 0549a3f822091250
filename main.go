package main

import "github.com/kozaktomas/face-checkin/cmd"

func main() {
	cmd.Execute()
}
