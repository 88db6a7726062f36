package imei

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

//go:embed tacs.csv
var embeddedTACs []byte

// Table maps device model names to their TAC, the 8-digit type allocation
// code that seeds identity generation when the caller supplies none.
type Table struct {
	byModel map[string]string
}

// LoadTable parses a TAC table from CSV. Each row is "tac,model[,model...]";
// a model may appear in any column after the first.
func LoadTable(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	byModel := make(map[string]string)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("TAC table: %w", err)
		}
		if len(row) < 2 {
			continue
		}
		tac := strings.TrimSpace(row[0])
		if len(tac) != 8 {
			continue
		}
		for _, model := range row[1:] {
			model = strings.TrimSpace(model)
			if model != "" {
				byModel[strings.ToUpper(model)] = tac
			}
		}
	}
	return &Table{byModel: byModel}, nil
}

// LoadTableFile loads a TAC table from disk.
func LoadTableFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("TAC table: %w", err)
	}
	defer f.Close()
	return LoadTable(f)
}

// DefaultTable returns the table embedded in the binary.
func DefaultTable() *Table {
	t, err := LoadTable(bytes.NewReader(embeddedTACs))
	if err != nil {
		// The embedded table is validated by tests; a parse failure here
		// is a build defect.
		panic(fmt.Sprintf("imei: embedded TAC table: %v", err))
	}
	return t
}

// TAC looks up the TAC for a model name, case-insensitively.
func (t *Table) TAC(model string) (string, bool) {
	tac, ok := t.byModel[strings.ToUpper(model)]
	return tac, ok
}

// Len reports the number of models in the table.
func (t *Table) Len() int {
	return len(t.byModel)
}
