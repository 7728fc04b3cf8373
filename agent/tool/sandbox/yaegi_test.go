package sandbox

import (
	"context"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutorRunsAllowedProgram(t *testing.T) {
	t.Parallel()

	exec := NewExecutor(Config{Timeout: 5 * time.Second})
	out, err := exec.Execute(context.Background(), `package main

import (
	"fmt"
	"math"
	"sort"
)

func main() {
	values := []float64{4, 1, 9}
	sort.Float64s(values)
	fmt.Println("sorted:", values)
	fmt.Printf("sqrt: %.1f\n", math.Sqrt(values[2]))
}
`)
	require.NoError(t, err)
	assert.Equal(t, "sorted: [1 4 9]\nsqrt: 3.0", out)
}

func TestExecutorRejectsForbiddenImport(t *testing.T) {
	t.Parallel()

	exec := NewExecutor(Config{})
	for _, pkg := range []string{"os", "net/http", "os/exec", "syscall", "unsafe"} {
		_, err := exec.Execute(context.Background(), "package main\n\nimport _ \""+pkg+"\"\n\nfunc main() {}\n")
		require.ErrorIs(t, err, ErrForbiddenImport, pkg)
	}
}

func TestExecutorRequiresMain(t *testing.T) {
	t.Parallel()

	exec := NewExecutor(Config{})

	_, err := exec.Execute(context.Background(), "package main\n\nfunc helper() {}\n")
	require.ErrorIs(t, err, ErrInvalidProgram)

	_, err = exec.Execute(context.Background(), "package stats\n\nfunc main() {}\n")
	require.ErrorIs(t, err, ErrInvalidProgram)

	_, err = exec.Execute(context.Background(), "this is not go")
	require.ErrorIs(t, err, ErrInvalidProgram)
}

func TestExecutorNoOutput(t *testing.T) {
	t.Parallel()

	out, err := NewExecutor(Config{}).Execute(context.Background(), "package main\n\nfunc main() { _ = 1 + 1 }\n")
	require.NoError(t, err)
	assert.Equal(t, "(no output)", out)
}

func TestExecutorIsolatesCalls(t *testing.T) {
	t.Parallel()

	exec := NewExecutor(Config{})
	src := `package main

import "fmt"

var counter int

func main() {
	counter++
	fmt.Println(counter)
}
`
	first, err := exec.Execute(context.Background(), src)
	require.NoError(t, err)
	second, err := exec.Execute(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, "1", first)
	assert.Equal(t, "1", second)
}

func TestExecutorTruncatesOutput(t *testing.T) {
	t.Parallel()

	exec := NewExecutor(Config{MaxOutput: 10})
	out, err := exec.Execute(context.Background(), `package main

import "strings"
import "fmt"

func main() { fmt.Println(strings.Repeat("x", 100)) }
`)
	require.NoError(t, err)
	assert.Equal(t, "xxxxxxxxxx"+truncatedOutputMark, out)
}

func TestExecutorTruncatesOnRuneBoundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		char      string
		maxOutput int
		want      string
	}{
		{name: "two byte runes", char: "é", maxOutput: 11, want: "ééééé"},
		{name: "four byte runes", char: "📊", maxOutput: 10, want: "📊📊"},
		{name: "limit on boundary", char: "é", maxOutput: 4, want: "éé"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			exec := NewExecutor(Config{MaxOutput: tt.maxOutput})
			out, err := exec.Execute(context.Background(), `package main

import "strings"
import "fmt"

func main() { fmt.Println(strings.Repeat("`+tt.char+`", 50)) }
`)
			require.NoError(t, err)
			assert.True(t, utf8.ValidString(out), "output is not valid UTF-8: %q", out)
			assert.Equal(t, tt.want+truncatedOutputMark, out)
		})
	}
}

func TestExecutorPackagesSorted(t *testing.T) {
	t.Parallel()

	got := NewExecutor(Config{}, "strings", "fmt").Packages()
	assert.Equal(t, []string{"fmt", "strings"}, got)
}
