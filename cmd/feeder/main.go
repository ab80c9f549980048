package main

import "github.com/vietddude/bpxfeeder/internal/cli"

func main() {
	cli.Execute()
}
