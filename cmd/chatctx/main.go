package main

import "github.com/s33g/chatctx/internal/cli"

func main() {
	cli.Execute()
}
