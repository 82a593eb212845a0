package main

import (
	"os"

	"flight-scraper/commands"
)

func main() {
	os.Exit(commands.Execute())
}
