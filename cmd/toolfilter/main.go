package main

import "github.com/vietddude/toolfilter/internal/cli"

func main() {
	cli.Execute()
}
