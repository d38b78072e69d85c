package main

import "btc-short-alerts/internal/cli"

func main() {
	cli.Execute()
}
