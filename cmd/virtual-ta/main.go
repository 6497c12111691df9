// Package main is the entry point for the TDS Virtual TA query service.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/virtual-ta/cmd/virtual-ta/app"
)

func main() {
	app.NewApp().Run()
}
