// Command lrpcd serves the built-in lrpc procedures over TCP.
package main

import "os"

func main() {
	os.Exit(run(ParseFlags(os.Args[1:])))
}
