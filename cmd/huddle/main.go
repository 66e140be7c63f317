package main

import "github.com/avolkov/huddle/cmd/huddle/cmd"

func main() {
	cmd.Execute()
}
