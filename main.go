package main

import (
	"os"

	"github.com/GoVPN-Admin/GoVPN-Admin/app"
)

func main() {
	err := app.Execute()
	if err != nil {
		os.Exit(1)
	}
}
