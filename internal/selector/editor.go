package selector

import (
	"errors"
	"os"
	"os/exec"
	"strings"
)

// ErrNoEditor is returned when no editor is configured or installed.
var ErrNoEditor = errors.New("no editor found (set $VISUAL or $EDITOR)")

// fallbackEditors are tried in order when neither variable is set.
var fallbackEditors = []string{"code", "cursor", "pycharm"}

// EditorCommand returns the editor argv: $VISUAL, then $EDITOR, then the
// first installed fallback.
func EditorCommand(lookupEnv func(string) (string, bool), lookPath func(string) (string, error)) ([]string, error) {
	for _, v := range []string{"VISUAL", "EDITOR"} {
		if val, ok := lookupEnv(v); ok {
			if fields := strings.Fields(val); len(fields) > 0 {
				return fields, nil
			}
		}
	}
	for _, name := range fallbackEditors {
		if _, err := lookPath(name); err == nil {
			return []string{name}, nil
		}
	}
	return nil, ErrNoEditor
}

// OpenEditor opens path in the operator's editor and waits for it.
func OpenEditor(path string) error {
	argv, err := EditorCommand(os.LookupEnv, exec.LookPath)
	if err != nil {
		return err
	}
	cmd := exec.Command(argv[0], append(argv[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
