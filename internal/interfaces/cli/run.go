package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	protonation "github.com/turtacn/KeyIP-Protonate/internal/application/protonation"
	domain "github.com/turtacn/KeyIP-Protonate/internal/domain/protonation"
	"github.com/turtacn/KeyIP-Protonate/internal/domain/structure"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/pdb"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/reduce"
	"github.com/turtacn/KeyIP-Protonate/pkg/errors"
)

// protonateFlags are shared by run and watch.
type protonateFlags struct {
	flip   bool
	his    bool
	outDir string
	suffix string
}

func (f *protonateFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.flip, "flip", true, "let the engine flip Asn/Gln/His side chains (default from config)")
	cmd.Flags().BoolVar(&f.his, "his", false, "generate every histidine protonation variant (default from config)")
	cmd.Flags().StringVar(&f.outDir, "out-dir", "", "directory for protonated files (default: next to each input)")
	cmd.Flags().StringVar(&f.suffix, "suffix", protonation.DefaultOutputSuffix, "suffix inserted before the output file extension")
}

// options resolves engine options: explicit flags win over the config.
func (f *protonateFlags) options(cmd *cobra.Command, c *CLIContext) reduce.Options {
	opts := reduce.Options{Flip: c.Config.FlipEnabled(), Histidines: c.Config.HisEnabled()}
	if cmd.Flags().Changed("flip") {
		opts.Flip = f.flip
	}
	if cmd.Flags().Changed("his") {
		opts.Histidines = f.his
	}
	return opts
}

func (f *protonateFlags) validate() error {
	if strings.ContainsAny(f.suffix, `/\`) {
		return errors.New(errors.ErrCodeValidation, "suffix must not contain path separators").WithDetail(f.suffix)
	}
	if f.suffix == "" && f.outDir == "" {
		return errors.New(errors.ErrCodeValidation, "an empty suffix needs --out-dir, inputs would be overwritten")
	}
	return nil
}

// outputPath returns where the protonated copy of input is written.
func (f *protonateFlags) outputPath(input string) string {
	dir := filepath.Dir(input)
	if f.outDir != "" {
		dir = f.outDir
	}
	base := filepath.Base(input)
	ext := filepath.Ext(base)
	return filepath.Join(dir, strings.TrimSuffix(base, ext)+f.suffix+ext)
}

// FileResult is the outcome of one input file.
type FileResult struct {
	Input     string         `json:"input"`
	Output    string         `json:"output,omitempty"`
	Structure string         `json:"structure"`
	Outcome   domain.Outcome `json:"outcome"`
	Added     int            `json:"added"`
	Skipped   int            `json:"skipped"`
	Cached    bool           `json:"cached"`
	Error     string         `json:"error,omitempty"`
}

// failed reports outcomes that leave no usable output.
func (r FileResult) failed() bool {
	switch r.Outcome {
	case domain.OutcomeProtonated, domain.OutcomeUnreadable:
		return false
	}
	return true
}

// RunSummary is printed by run and by each watch event.
type RunSummary struct {
	BatchID string        `json:"batch_id,omitempty"`
	Files   []FileResult  `json:"files"`
	Elapsed time.Duration `json:"elapsed"`
}

// Failed counts files without a usable output.
func (s *RunSummary) Failed() int {
	n := 0
	for _, f := range s.Files {
		if f.failed() {
			n++
		}
	}
	return n
}

func (s *RunSummary) TableHeaders() []string {
	return []string{"INPUT", "OUTCOME", "ADDED", "SKIPPED", "OUTPUT"}
}

func (s *RunSummary) TableRows() [][]string {
	rows := make([][]string, 0, len(s.Files))
	for _, f := range s.Files {
		out := f.Output
		if f.Error != "" {
			out = f.Error
		}
		rows = append(rows, []string{f.Input, string(f.Outcome), strconv.Itoa(f.Added), strconv.Itoa(f.Skipped), out})
	}
	return rows
}

func (s *RunSummary) String() string {
	var sb strings.Builder
	for _, f := range s.Files {
		switch {
		case f.Error != "":
			fmt.Fprintf(&sb, "%s: %s (%s)\n", f.Input, f.Outcome, f.Error)
		default:
			fmt.Fprintf(&sb, "%s: %s, %d hydrogens added, %d skipped -> %s\n", f.Input, f.Outcome, f.Added, f.Skipped, f.Output)
		}
	}
	fmt.Fprintf(&sb, "%d file(s), %d failed, %s", len(s.Files), s.Failed(), s.Elapsed.Round(time.Millisecond))
	return sb.String()
}

// protonateFiles reads every input, protonates the readable ones as one
// batch and writes the results.  Per-file failures are reported in the
// summary; it never stops early.
func protonateFiles(cmd *cobra.Command, svc protonation.Service, inputs []string, f *protonateFlags, opts reduce.Options, log logging.Logger) *RunSummary {
	start := time.Now()
	summary := &RunSummary{Files: make([]FileResult, len(inputs))}

	var batch []*structure.Structure
	var slots []int
	for i, in := range inputs {
		name := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
		summary.Files[i] = FileResult{Input: in, Structure: name}
		st, err := pdb.ParseFile(in, name)
		if err == nil && st.AtomCount() == 0 {
			err = errors.New(errors.ErrCodeStructureParse, "file contains no atoms").WithDetail(in)
		}
		if err != nil {
			log.Error("structure not readable", logging.String("path", in), logging.Err(err))
			summary.Files[i].Outcome = domain.OutcomeError
			summary.Files[i].Error = err.Error()
			continue
		}
		batch = append(batch, st)
		slots = append(slots, i)
	}

	if len(batch) > 0 {
		_, report := svc.AddHydrogens(cmd.Context(), batch, opts)
		summary.BatchID = report.ID
		for j, sr := range report.Structures {
			fr := &summary.Files[slots[j]]
			fr.Outcome = sr.Run.Outcome
			fr.Added = sr.Run.Added
			fr.Skipped = sr.Run.Skipped
			fr.Cached = sr.Run.Cached
			if fr.failed() {
				fr.Error = sr.Run.ErrorMessage
				continue
			}
			out := f.outputPath(fr.Input)
			if err := pdb.WriteFile(out, batch[j]); err != nil {
				log.Error("output not written", logging.String("path", out), logging.Err(err))
				fr.Outcome = domain.OutcomeError
				fr.Error = err.Error()
				continue
			}
			fr.Output = out
		}
	}

	summary.Elapsed = time.Since(start)
	return summary
}

func newRunCmd(deps CommandDependencies) *cobra.Command {
	flags := &protonateFlags{}

	cmd := &cobra.Command{
		Use:   "run FILE...",
		Short: "Add hydrogens to PDB files",
		Long: "Run the engine on each PDB file and write a copy with the grafted hydrogens.\n" +
			"Engine failures are reported on stderr and do not stop the batch.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if err := flags.validate(); err != nil {
				return err
			}
			if flags.outDir != "" {
				if err := os.MkdirAll(flags.outDir, 0o755); err != nil {
					return errors.Wrap(err, errors.ErrCodeStructureWrite, "cannot create output directory").WithDetail(flags.outDir)
				}
			}

			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()
			cmd.SetContext(ctx)

			svc, release, err := deps.Service(ctx, cliCtx, protonation.WithNotifier(protonation.MultiNotifier{
				protonation.NewLogNotifier(cliCtx.Logger),
				protonation.NewWriterNotifier(cmd.ErrOrStderr()),
			}))
			if err != nil {
				return err
			}
			defer release()

			summary := protonateFiles(cmd, svc, args, flags, flags.options(cmd, cliCtx), cliCtx.Logger)
			if err := PrintResult(cmd, summary); err != nil {
				return err
			}
			if n := summary.Failed(); n > 0 {
				return errors.Newf(errors.ErrCodeEngineFailure, "%d of %d structure(s) failed", n, len(summary.Files))
			}
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

//Personal.AI order the ending
