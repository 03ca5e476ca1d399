package main

import (
	"github.com/luma/agi/cmd"
)

func main() {
	cmd.Execute()
}
