package main

import (
	"github.com/maxgio92/xexport/pkg/cmd"
)

func main() {
	cmd.Execute()
}
