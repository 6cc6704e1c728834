// Command swipe browses a feed of remote images from the terminal.
package main

import "github.com/meigma/swipe/cmd/swipe/cmd"

func main() {
	cmd.Execute()
}
