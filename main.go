// The main package for the chatcrawler executable.
package main

import (
	"github.com/JakeFAU/replay-chat-crawler/cmd"
)

func main() {
	cmd.Execute()
}
