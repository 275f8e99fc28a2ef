// Command respimg builds responsive image variants from a source tree.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/lucas-albers-lz4/respimg/pkg/exitcodes"
	"github.com/lucas-albers-lz4/respimg/pkg/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := Execute(ctx, os.Args[1:])
	stop()
	if err != nil {
		code, _ := exitcodes.IsExitCodeError(err)
		log.Error("respimg failed", "error", err, "code", code, "reason", exitcodes.CodeDescriptions[code])
		os.Exit(code)
	}
}
