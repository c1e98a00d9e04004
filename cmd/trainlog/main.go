package main

import "github.com/JakeFAU/trainlog/cmd"

// main defers all execution to the cobra command tree.
func main() {
	cmd.Execute()
}
