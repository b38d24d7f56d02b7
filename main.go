package main

import "mjolobid-backend/cmd"

func main() {
	cmd.Run()
}
