package harness

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxCreateAttempts = 1000

// RunFiles are the two per-run log files of one task.
type RunFiles struct {
	// LogPath is the structured run log.
	LogPath string
	// SolverLogPath receives raw engine output.
	SolverLogPath string
	// Stamp is the timestamp component shared by both names.
	Stamp string
}

// Timestamp renders t as YYYYMMDD-HHMMSS-<nanoseconds>.
func Timestamp(t time.Time) string {
	return t.Format("20060102-150405") + fmt.Sprintf("-%09d", t.Nanosecond())
}

// SanitizeName makes a label safe for file names: diacritics are stripped
// and anything other than letters, digits, '-', '.' and '_' becomes '_'.
func SanitizeName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if out, _, err := transform.String(t, s); err == nil {
		s = out
	}
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '-' || r == '.' || r == '_':
			return r
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return r
		default:
			return '_'
		}
	}, s)
	if s == "" {
		return "_"
	}
	return s
}

// CreateRunFiles creates the structured and raw log files for a run under
// dir. Both files are created exclusively; on a name collision the stamp is
// redrawn, so concurrent tasks never share a path.
func CreateRunFiles(dir, label, backend string, now func() time.Time) (RunFiles, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return RunFiles{}, fmt.Errorf("create log dir: %w", err)
	}
	safeLabel := SanitizeName(label)
	safeBackend := SanitizeName(backend)

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		stamp := Timestamp(now())
		if attempt > 0 {
			stamp += fmt.Sprintf("-%d", attempt)
		}
		files := RunFiles{
			LogPath:       filepath.Join(dir, fmt.Sprintf("output_%s_%s_%s.log", safeLabel, safeBackend, stamp)),
			SolverLogPath: filepath.Join(dir, fmt.Sprintf("solver_%s_%s_%s.log", safeLabel, safeBackend, stamp)),
			Stamp:         stamp,
		}

		if err := createExclusive(files.LogPath); err != nil {
			if errors.Is(err, fs.ErrExist) {
				continue
			}
			return RunFiles{}, err
		}
		if err := createExclusive(files.SolverLogPath); err != nil {
			os.Remove(files.LogPath)
			if errors.Is(err, fs.ErrExist) {
				continue
			}
			return RunFiles{}, err
		}
		return files, nil
	}
	return RunFiles{}, fmt.Errorf("could not create unique run files in %s", dir)
}

func createExclusive(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}
