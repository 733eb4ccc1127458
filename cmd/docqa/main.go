// Package main is the entry point for the docqa service.
package main

import (
	"github.com/joho/godotenv"
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/docqa/cmd/docqa/app"
)

func main() {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	app.NewApp().Run()
}
