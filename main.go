package main

import "kuharvest/cmd"

func main() {
	cmd.Execute()
}
