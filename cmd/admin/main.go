package main

import "github.com/edukit/coursegen/internal/cli"

func main() {
	cli.Execute()
}
