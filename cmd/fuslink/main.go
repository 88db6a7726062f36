package main

import "github.com/fuslink/fuslink/internal/cli"

func main() {
	cli.Execute()
}
