// cmd/fusionc/commands/list.go
package commands

import (
	"fmt"

	"sentra/internal/fusion/ufunc"
)

// ListCommand prints every registered ufunc and reduction name, in
// the sorted order ufunc.Registry guarantees.
func ListCommand(args []string) error {
	reg := ufunc.NewRegistry()

	fmt.Println("ufuncs:")
	for _, name := range reg.Names() {
		fmt.Printf("  %s\n", name)
	}

	fmt.Println("reductions:")
	for _, name := range reg.ReductionNames() {
		fmt.Printf("  %s\n", name)
	}
	return nil
}
