package main

import (
	"github.com/joho/godotenv"

	"polymirror/internal/cli"
)

func main() {
	_ = godotenv.Load()
	cli.Execute()
}
