// Package main is the entry point for afterchive.
package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// A missing .env is normal; variables already set in the environment win.
	_ = godotenv.Load()

	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
