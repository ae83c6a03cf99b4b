package main

import "github.com/MeKo-Tech/tilemap/internal/cmd"

func main() {
	cmd.Execute()
}
