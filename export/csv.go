// Package export renders histogram counts and frames into files: CSV tables, PNG and HTML
// charts, and still snapshots.
package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

// WriteCSV writes counts as a "Bucket,Count" table with 1-based bucket numbers.
func WriteCSV(w io.Writer, counts []uint64) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Bucket", "Count"}); err != nil {
		return errors.Wrap(err, "write csv header")
	}
	for i, c := range counts {
		if err := cw.Write([]string{strconv.Itoa(i + 1), strconv.FormatUint(c, 10)}); err != nil {
			return errors.Wrapf(err, "write csv row %d", i+1)
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush csv")
}
