package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xirelogy/go-lunar"
)

const (
	prompt     = "> "
	contPrompt = ">> "
)

// repl reads chunks line by line. Input that ends early is continued on
// the next line; an expression line prints its values.
func repl(ctx context.Context, vm *lunar.VM, e env) {
	in := bufio.NewScanner(e.stdin)
	var pending strings.Builder
	fmt.Fprint(e.stdout, prompt)
	for in.Scan() {
		if pending.Len() > 0 {
			pending.WriteByte('\n')
		}
		pending.WriteString(in.Text())
		script, err := compileLine(pending.String())
		var se *lunar.SyntaxError
		if errors.As(err, &se) && se.Premature {
			fmt.Fprint(e.stdout, contPrompt)
			continue
		}
		pending.Reset()
		if err != nil {
			report(e.stderr, err)
			fmt.Fprint(e.stdout, prompt)
			continue
		}
		res, err := vm.Run(ctx, script)
		if report(e.stderr, err) && len(res) > 0 {
			printValues(e.stdout, res)
		}
		if ctx.Err() != nil {
			return
		}
		fmt.Fprint(e.stdout, prompt)
	}
	fmt.Fprintln(e.stdout)
}

// compileLine tries src as an expression first so that typing "1 + 1"
// prints 2.
func compileLine(src string) (*lunar.Script, error) {
	if script, err := lunar.Compile("return "+src, "stdin"); err == nil {
		return script, nil
	}
	return lunar.Compile(src, "stdin")
}

func printValues(w io.Writer, vals []lunar.Value) {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = v.Text()
	}
	fmt.Fprintln(w, strings.Join(parts, "\t"))
}
