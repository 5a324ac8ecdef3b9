package main

import (
	"github.com/joho/godotenv"

	"price-move-alerts/internal/cli"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	cli.Execute()
}
