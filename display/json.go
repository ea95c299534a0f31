package display

import (
	"encoding/json"
	"io"

	"github.com/pterm/pterm"
)

// MarshalJSON marshals with two-space indentation.
func MarshalJSON(v interface{}) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

// Table renders rows under header as a pterm table to w.
func Table(w io.Writer, header []string, rows [][]string) error {
	data := make(pterm.TableData, 0, len(rows)+1)
	data = append(data, header)
	data = append(data, rows...)

	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out+"\n")
	return err
}
