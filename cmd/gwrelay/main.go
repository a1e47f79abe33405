package main

import (
	"github.com/botlabs-gg/gwrelay/common/run"
)

func main() {
	run.Init()
	run.Run()
}
