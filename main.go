package main

import "github.com/audiolibrelab/masterweb/cmd"

func main() {
	cmd.Execute()
}
