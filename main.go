package main

import "github.com/frahmantamala/payments-service/cmd"

func main() {
	cmd.Execute()
}
