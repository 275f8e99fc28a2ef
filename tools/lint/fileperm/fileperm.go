// Package fileperm provides a linter that flags hardcoded file permission
// literals where a pkg/fileutil constant should be used.
package fileperm

import (
	"go/ast"
	"go/token"
	"strconv"
	"strings"

	"golang.org/x/tools/go/analysis"
)

// Analyzer reports integer literals passed as the permission argument of
// WriteFile, Mkdir, MkdirAll, OpenFile and Chmod calls outside test files.
var Analyzer = &analysis.Analyzer{
	Name: "fileperm",
	Doc:  "checks for hardcoded file permission literals instead of using fileutil constants",
	Run:  run,
}

// permFuncs are the calls whose last argument is a file mode, whatever the
// receiver (os, afero or an afero.Fs value).
var permFuncs = map[string]bool{
	"WriteFile": true,
	"Mkdir":     true,
	"MkdirAll":  true,
	"OpenFile":  true,
	"Chmod":     true,
}

// permConstants maps permission values to the fileutil constant to suggest.
var permConstants = map[int64]string{
	0o600: "fileutil.ReadWriteUserPermission",
	0o644: "fileutil.ReadWriteUserReadOthers",
	0o755: "fileutil.ReadWriteExecuteUserReadExecuteOthers",
}

func run(pass *analysis.Pass) (interface{}, error) {
	for _, file := range pass.Files {
		if strings.HasSuffix(pass.Fset.Position(file.Pos()).Filename, "_test.go") {
			continue
		}
		ast.Inspect(file, func(n ast.Node) bool {
			call, ok := n.(*ast.CallExpr)
			if !ok || len(call.Args) == 0 {
				return true
			}
			fun, ok := call.Fun.(*ast.SelectorExpr)
			if !ok || !permFuncs[fun.Sel.Name] {
				return true
			}
			lit, ok := call.Args[len(call.Args)-1].(*ast.BasicLit)
			if !ok || lit.Kind != token.INT {
				return true
			}
			value, err := strconv.ParseInt(lit.Value, 0, 64)
			if err != nil || value == 0 {
				return true
			}
			if constant, ok := permConstants[value]; ok {
				pass.Reportf(lit.Pos(), "use %s instead of hardcoded file permission %s", constant, lit.Value)
			} else {
				pass.Reportf(lit.Pos(), "use a named file permission constant instead of hardcoded %s", lit.Value)
			}
			return true
		})
	}
	return nil, nil
}
