package main

import "github.com/example/face-check/cmd"

func main() {
	cmd.Execute()
}
