package main

import (
	"fmt"
	"os"

	"github.com/d2regular/flask-oauth2-example/internal/app"
)

func main() {
	if err := app.Run(os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
