// Package main is the entry point for the docqa evaluation runner.
package main

import (
	"github.com/joho/godotenv"
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/docqa/cmd/docqa-eval/app"
)

func main() {
	_ = godotenv.Load()

	app.NewApp().Run()
}
