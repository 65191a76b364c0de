package main

import "couple-todo-backend/cmd"

func main() {
	cmd.Run()
}
