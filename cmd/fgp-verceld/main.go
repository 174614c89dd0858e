package main

import "github.com/fast-gateway-protocol/vercel/internal/cli"

func main() {
	cli.Execute()
}
