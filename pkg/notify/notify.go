package notify

import (
	"fmt"

	"github.com/fatih/color"
)

// Notifier is the user-facing notification sink. Description is optional
// detail under the headline message.
type Notifier interface {
	Success(message, description string)
	Error(message, description string)
	Info(message, description string)
}

// Console writes notifications to stdout in the CLI's color scheme.
type Console struct{}

func NewConsole() *Console { return &Console{} }

func (c *Console) Success(message, description string) {
	color.Green("\n✓ %s", message)
	printDescription(description)
}

func (c *Console) Error(message, description string) {
	color.Red("\n✗ %s", message)
	printDescription(description)
}

func (c *Console) Info(message, description string) {
	color.Yellow("\n%s", message)
	printDescription(description)
}

func printDescription(description string) {
	if description != "" {
		fmt.Printf("  %s\n", description)
	}
}
