package main

import "github.com/vietddude/mpath/internal/cli"

func main() {
	cli.Execute()
}
