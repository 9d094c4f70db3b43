package main

import "stickergif/cmd"

func main() {
	cmd.Execute()
}
