package main

import "github.com/vietddude/opwatcher/internal/cli"

func main() {
	cli.Execute()
}
