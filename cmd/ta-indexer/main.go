// Package main is the entry point for the virtual TA index build job.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/virtual-ta/cmd/ta-indexer/app"
)

func main() {
	app.NewApp().Run()
}
