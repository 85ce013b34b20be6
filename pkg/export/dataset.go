package export

import "errors"

// ErrNoHeaders is returned when a dataset declares no columns.
var ErrNoHeaders = errors.New("export: dataset requires at least one header")

// Dataset defines tabular export content. Widths are relative column weights;
// when absent or mismatched every column gets the same share.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
	Widths  []float64
	Footer  string
}

func (d Dataset) record(row map[string]string) []string {
	record := make([]string, len(d.Headers))
	for i, header := range d.Headers {
		record[i] = row[header]
	}
	return record
}

// columnWidths splits total across the columns according to Widths.
func (d Dataset) columnWidths(total float64) []float64 {
	widths := make([]float64, len(d.Headers))
	weights := d.Widths
	var sum float64
	if len(weights) == len(d.Headers) {
		for _, w := range weights {
			if w <= 0 {
				sum = 0
				break
			}
			sum += w
		}
	}
	if sum == 0 {
		for i := range widths {
			widths[i] = total / float64(len(widths))
		}
		return widths
	}
	for i, w := range weights {
		widths[i] = total * w / sum
	}
	return widths
}
