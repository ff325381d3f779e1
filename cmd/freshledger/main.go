// Command freshledger operates a persistent perishable-goods registry: role
// management, product lifecycle, discounting, lookups, analytics and report
// export.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

var exitFunc = os.Exit

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := execute(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "freshledger:", err)
		stop()
		exitFunc(1)
	}
}
