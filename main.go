package main

import (
	"github.com/flowlens/flowlens/cmd"
)

func main() {
	cmd.Execute()
}
