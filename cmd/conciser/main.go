package main

import "github.com/smendola/conciser/internal/cli"

func main() {
	cli.Main()
}
