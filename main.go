// Command bijou is an embeddable encrypted filesystem engine, usable
// standalone through this CLI or as a FUSE mount.
package main

import "github.com/bijoufs/bijou/cmd"

func main() {
	cmd.Execute()
}
