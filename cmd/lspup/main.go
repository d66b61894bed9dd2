package main

import "lspup/internal/cli"

func main() {
	cli.Execute()
}
