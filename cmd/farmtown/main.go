package main

import (
	"github.com/andrescamacho/farmtown-go/internal/adapters/cli"
)

func main() {
	cli.Execute()
}
