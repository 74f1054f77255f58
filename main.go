package main

import (
	"github.com/ColonelBlimp/sirengate/cmd"
	"github.com/ColonelBlimp/sirengate/internal/recovery"
)

func main() {
	defer recovery.HandlePanic()
	cmd.Execute()
}
