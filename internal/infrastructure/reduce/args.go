// Package reduce drives the Reduce protonation engine as an external process:
// it builds the invocation, captures the engine's output, keeps the
// structural records and parses them back into a structure whose engine-added
// atoms are flagged IsNew.
package reduce

import (
	"path/filepath"

	"github.com/turtacn/KeyIP-Protonate/pkg/errors"
)

// Engine flags.
const (
	FlagFlip       = "-FLIP"
	FlagHistidines = "-HIS"
	FlagDropAtomH  = "-DROP_HYDROGENS_ON_ATOM_RECORDS"
	FlagDropOtherH = "-DROP_HYDROGENS_ON_OTHER_RECORDS"
	FlagDictionary = "-DB"
	FlagWaterOcc   = "-H2OOCCcutoff0.0"
	FlagWaterB     = "-H2OBcutoff99"
)

// Options selects the optional engine behaviours.
type Options struct {
	// Flip lets the engine flip Asn/Gln/His side chains to optimise
	// hydrogen bonding.
	Flip bool `json:"flip" mapstructure:"flip"`

	// Histidines asks for every histidine protonation variant.
	Histidines bool `json:"his" mapstructure:"his"`
}

// DefaultOptions returns flip on, histidine variants off.
func DefaultOptions() Options {
	return Options{Flip: true}
}

// BuildArgs returns the engine argument list.  Optional tokens lead; -HIS is
// placed before -FLIP when both are set.
func BuildArgs(dictPath, inputPath string, opts Options) []string {
	args := []string{
		FlagDropAtomH,
		FlagDropOtherH,
		FlagDictionary, dictPath,
		inputPath,
		FlagWaterOcc,
		FlagWaterB,
	}
	if opts.Flip {
		args = append([]string{FlagFlip}, args...)
	}
	if opts.Histidines {
		args = append([]string{FlagHistidines}, args...)
	}
	return args
}

// Paths locates the engine binary and its heteroatom dictionary.
type Paths struct {
	Executable string
	Dictionary string
}

// DictionaryFile is the bundled wwPDB heteroatom dictionary.
const DictionaryFile = "reduce_wwPDB_het_dict.txt"

// ResolvePaths returns the bundled engine paths under baseDir for goos.
// The Windows build reads its dictionary path with forward slashes.
func ResolvePaths(baseDir, goos string) (Paths, error) {
	dict := filepath.Join(baseDir, "data", DictionaryFile)
	var exe string
	switch goos {
	case "linux":
		exe = filepath.Join(baseDir, "bin", "linux", "reduce")
	case "darwin":
		exe = filepath.Join(baseDir, "bin", "darwin", "reduce")
	case "windows":
		exe = filepath.Join(baseDir, "bin", "win32", "reduce.exe")
		dict = filepath.ToSlash(dict)
	default:
		return Paths{}, errors.New(errors.ErrCodeValidation, "no bundled reduce binary for platform").
			WithDetail(goos)
	}
	return Paths{Executable: exe, Dictionary: dict}, nil
}

//Personal.AI order the ending
