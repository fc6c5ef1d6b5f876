package main

import "github.com/pocketumami/pocketumami/pkg/cli"

func main() {
	cli.Execute()
}
