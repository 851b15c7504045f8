package main

import (
	"github.com/vexvcs/vex/internal/vexcmd"
)

func main() {
	vexcmd.Main()
}
