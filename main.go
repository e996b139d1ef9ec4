package main

import "github.com/andresmejia3/uncanny/cmd"

func main() {
	cmd.Execute()
}
