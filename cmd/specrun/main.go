package main

import (
	"github.com/NVIDIA/specrun/pkg/cli"
)

func main() {
	cli.Execute()
}
