package main

import "github.com/jvtubergen/gmaps-image/cmd"

func main() {
	cmd.Execute()
}
