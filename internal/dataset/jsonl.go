package dataset

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/martinscooper/lighteval/internal/task"
)

// Dir serves dataset splits from <root>/<suite>/<task>.jsonl files, one JSON
// object per line. Re-reading the file on every call keeps the sequence
// restartable.
type Dir struct {
	Root string
}

func (d Dir) Examples(desc task.Descriptor) ([]task.Example, error) {
	root := strings.TrimSpace(d.Root)
	if root == "" {
		return nil, errors.New("dataset: empty root dir")
	}

	path := filepath.Join(root, desc.Suite, desc.Task+".jsonl")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: open split for %s|%s: %w", desc.Suite, desc.Task, err)
	}
	defer f.Close()

	var out []task.Example
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var ex task.Example
		if err := json.Unmarshal([]byte(line), &ex); err != nil {
			return nil, fmt.Errorf("dataset: %s line %d: %w", filepath.Base(path), lineNum, err)
		}
		out = append(out, ex)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("dataset: read %s: %w", filepath.Base(path), err)
	}
	return out, nil
}
