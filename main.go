package main

import (
	"github.com/pyusd-analytics/blocktracer/cmd"
)

func main() {
	cmd.Execute()
}
