// Command esg-engine reads one JSON document of company metrics on stdin and
// prints {"totalEsgScore": ..., "aiAnalysis": [...]} on stdout. Failures are
// reported as {"error": "..."} with a non-zero exit status.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/bryanwahyu/esg-analyzer/internal/engine/reference"
)

func main() {
	input, err := io.ReadAll(io.LimitReader(os.Stdin, 1<<20))
	if err != nil {
		fail(fmt.Errorf("read stdin: %w", err))
	}
	out, err := reference.Run(input)
	if err != nil {
		fail(err)
	}
	if _, err := os.Stdout.Write(append(out, '\n')); err != nil {
		os.Exit(1)
	}
}

func fail(err error) {
	_ = json.NewEncoder(os.Stdout).Encode(map[string]string{"error": err.Error()})
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
