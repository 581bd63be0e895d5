package protonation

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/reduce"
)

// peptide is a two-residue fragment with one nitrogen per residue and a
// water.
const peptide = `ATOM      1  N   GLY A   1      10.000  10.000  10.000  1.00 15.50           N  
ATOM      2  CA  GLY A   1      11.458  10.000  10.000  1.00 16.00           C  
ATOM      3  N   ALA A   2      13.000  11.000  10.000  1.00 17.00           N  
ATOM      4  CA  ALA A   2      14.458  11.000  10.000  1.00 18.00           C  
HETATM    5  O   HOH A 101      20.000  20.000  20.000  1.00 30.00           O  
END
`

// hydrogenatingRunner stands in for the engine: it echoes the input records
// and follows every nitrogen with a new hydrogen one unit along +Y.
type hydrogenatingRunner struct {
	mu       sync.Mutex
	exitCode map[string]int
	calls    int
}

func (r *hydrogenatingRunner) Run(_ context.Context, inv reduce.Invocation) (*reduce.RunResult, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()

	raw, err := os.ReadFile(inv.Input)
	if err != nil {
		return nil, err
	}
	for marker, code := range r.exitCode {
		if strings.Contains(string(raw), marker) {
			return &reduce.RunResult{ExitCode: code}, nil
		}
	}

	var out strings.Builder
	out.WriteString("USER  MOD reduce stand-in\n")
	for _, line := range strings.Split(string(raw), "\n") {
		out.WriteString(line + "\n")
		if strings.HasPrefix(line, "ATOM") && strings.TrimSpace(line[12:16]) == "N" {
			out.WriteString(hydrogenAfter(line) + "\n")
		}
	}
	return &reduce.RunResult{Stdout: []byte(out.String())}, nil
}

func hydrogenAfter(line string) string {
	y, _ := strconv.ParseFloat(strings.TrimSpace(line[38:46]), 64)
	h := line[:12] + " H  " + line[16:38] + fmt.Sprintf("%8.3f", y+1) + line[46:76] + " H  "
	return h + "   new"
}
