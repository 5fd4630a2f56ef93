package main

import "github.com/fakeyudi/gtm/cmd"

func main() {
	cmd.Execute()
}
