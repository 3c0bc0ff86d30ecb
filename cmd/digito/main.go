package main

import "github.com/MeKo-Tech/digito/cmd/digito/cmd"

func main() {
	cmd.Execute()
}
