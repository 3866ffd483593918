// Command gosshctl is a demo CLI exercising the gossh client-side SSH
// transport library directly (connect, authenticate, inspect known_hosts).
package main

import "github.com/dantte-lp/gossh/cmd/gosshctl/commands"

func main() {
	commands.Execute()
}
