package main

import (
	"log"

	"github.com/joho/godotenv"

	corecmd "github.com/m3rciful/regbot/core/cmd"
	"github.com/m3rciful/regbot/internal/app"
)

func main() {
	_ = godotenv.Load()

	if err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "config.yaml",
		Bootstrap:         app.Bootstrap,
	}); err != nil {
		log.Fatal(err)
	}
}
