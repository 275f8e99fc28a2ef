// Build automation for respimg. Run with: go run ./build [tasks]
package main

import (
	"os"
	"os/exec"
	"strings"

	"github.com/goyek/goyek/v2"
)

// run executes a go command, streaming its output.
func run(a *goyek.A, args ...string) {
	a.Logf("go %s", strings.Join(args, " "))
	cmd := exec.CommandContext(a.Context(), "go", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		a.Error(err)
	}
}

var vet = goyek.Define(goyek.Task{
	Name:  "vet",
	Usage: "Run go vet on all packages",
	Action: func(a *goyek.A) {
		run(a, "vet", "./...")
	},
})

var lint = goyek.Define(goyek.Task{
	Name:  "lint",
	Usage: "Check for hardcoded file permissions",
	Action: func(a *goyek.A) {
		run(a, "run", "./tools/lint/fileperm/cmd", "./...")
	},
})

var test = goyek.Define(goyek.Task{
	Name:  "test",
	Usage: "Run all tests with the race detector",
	Action: func(a *goyek.A) {
		run(a, "test", "-race", "-count=1", "./...")
	},
})

var binary = goyek.Define(goyek.Task{
	Name:  "binary",
	Usage: "Build bin/respimg, stamped with $RESPIMG_VERSION",
	Action: func(a *goyek.A) {
		version := os.Getenv("RESPIMG_VERSION")
		if version == "" {
			version = "dev"
		}
		ldflags := "-X github.com/lucas-albers-lz4/respimg/pkg/version.Version=" + version
		run(a, "build", "-ldflags", ldflags, "-o", "bin/respimg", "./cmd/respimg")
	},
})

var all = goyek.Define(goyek.Task{
	Name:  "all",
	Usage: "vet, lint, test and build",
	Deps:  goyek.Deps{vet, lint, test, binary},
})

func main() {
	goyek.SetDefault(all)
	goyek.Main(os.Args[1:])
}
