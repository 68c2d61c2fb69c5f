package main

import (
	"fmt"
	"os"
	"seatwatch-backend/cmd/seatwatch-cli/cmd"
)

func main() {
	baseUrl, ok := os.LookupEnv("SEATWATCH_URL")
	if !ok {
		fmt.Println("You should specify the base url of the seatwatch daemon in the environment variable SEATWATCH_URL.")
		os.Exit(1)
	}
	cmd.BaseUrl = baseUrl
	cmd.AccessToken = os.Getenv("SEATWATCH_API_TOKEN")

	cmd.Execute()
}
