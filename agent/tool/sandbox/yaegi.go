package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"path"
	"sort"
	"strconv"
	"strings"
	"testing/fstest"
	"time"
	"unicode/utf8"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	contractx "github.com/tanpawarit/brain-orchestrator/agent/contract"
)

var (
	ErrForbiddenImport = errors.New("program imports a package outside the allow-list")
	ErrInvalidProgram  = errors.New("program is not a valid analysis program")
	ErrExecution       = errors.New("program execution failed")
	ErrTimeout         = errors.New("program execution timed out")
)

// DefaultPackages is the numeric and text-formatting allow-list.
var DefaultPackages = []string{
	"fmt",
	"math",
	"math/big",
	"math/bits",
	"math/cmplx",
	"math/rand",
	"sort",
	"strconv",
	"strings",
}

const (
	entryName           = "brainAnalysisEntry"
	defaultTimeout      = 10 * time.Second
	defaultMaxOutput    = 16 << 10
	truncatedOutputMark = "\n[output truncated]"
)

type Config struct {
	Timeout   time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
	MaxOutput int           `envconfig:"MAX_OUTPUT" split_words:"true" default:"16384"`
}

// Executor runs Go programs in a yaegi interpreter created per call, with
// only the allow-listed stdlib symbols loaded and no source filesystem.
type Executor struct {
	allowed   map[string]bool
	symbols   interp.Exports
	timeout   time.Duration
	maxOutput int
}

var _ contractx.CodeExecutor = (*Executor)(nil)

func NewExecutor(cfg Config, packages ...string) *Executor {
	if len(packages) == 0 {
		packages = DefaultPackages
	}
	allowed := make(map[string]bool, len(packages))
	for _, p := range packages {
		allowed[strings.TrimSpace(p)] = true
	}

	// stdlib keys are "importpath/pkgname".
	symbols := make(interp.Exports, len(allowed))
	for key, syms := range stdlib.Symbols {
		if allowed[path.Dir(key)] {
			symbols[key] = syms
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxOutput := cfg.MaxOutput
	if maxOutput <= 0 {
		maxOutput = defaultMaxOutput
	}

	return &Executor{
		allowed:   allowed,
		symbols:   symbols,
		timeout:   timeout,
		maxOutput: maxOutput,
	}
}

// Packages lists the allow-list in sorted order.
func (e *Executor) Packages() []string {
	out := make([]string, 0, len(e.allowed))
	for p := range e.allowed {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Execute checks imports, then runs the program's main function and returns
// what it printed. Nothing survives the call.
func (e *Executor) Execute(ctx context.Context, source string) (string, error) {
	program, err := e.prepare(source)
	if err != nil {
		return "", err
	}

	var stdout, stderr bytes.Buffer
	i := interp.New(interp.Options{
		Stdout:               &stdout,
		Stderr:               &stderr,
		SourcecodeFilesystem: fstest.MapFS{},
	})
	if err := i.Use(e.symbols); err != nil {
		return "", fmt.Errorf("%w: load symbols: %v", ErrExecution, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if _, err := i.EvalWithContext(runCtx, program); err != nil {
		return "", e.classify(ctx, runCtx, err)
	}
	if _, err := i.EvalWithContext(runCtx, "main."+entryName+"()"); err != nil {
		return "", e.classify(ctx, runCtx, err)
	}

	out := strings.TrimSpace(stdout.String())
	if len(out) > e.maxOutput {
		cut := e.maxOutput
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = out[:cut] + truncatedOutputMark
	}
	if out == "" {
		out = "(no output)"
	}
	return out, nil
}

func (e *Executor) classify(parent, runCtx context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if runCtx.Err() != nil {
		return fmt.Errorf("%w after %s", ErrTimeout, e.timeout)
	}
	return fmt.Errorf("%w: %v", ErrExecution, err)
}

// prepare validates the program and renames main so that evaluating the
// source only declares it.
func (e *Executor) prepare(source string) (string, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return "", fmt.Errorf("%w: empty source", ErrInvalidProgram)
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "analysis.go", source, parser.ParseComments)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidProgram, err)
	}
	if file.Name.Name != "main" {
		return "", fmt.Errorf("%w: package must be main", ErrInvalidProgram)
	}

	var forbidden []string
	for _, imp := range file.Imports {
		p, err := strconv.Unquote(imp.Path.Value)
		if err != nil || !e.allowed[p] {
			forbidden = append(forbidden, imp.Path.Value)
		}
	}
	if len(forbidden) > 0 {
		return "", fmt.Errorf("%w: %s", ErrForbiddenImport, strings.Join(forbidden, ", "))
	}

	var entry *ast.FuncDecl
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Recv != nil {
			continue
		}
		if fn.Name.Name == entryName {
			return "", fmt.Errorf("%w: reserved identifier %s", ErrInvalidProgram, entryName)
		}
		if fn.Name.Name == "main" {
			entry = fn
		}
	}
	if entry == nil {
		return "", fmt.Errorf("%w: func main is missing", ErrInvalidProgram)
	}
	entry.Name.Name = entryName

	var buf bytes.Buffer
	if err := format.Node(&buf, fset, file); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidProgram, err)
	}
	return buf.String(), nil
}
