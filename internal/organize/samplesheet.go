package organize

import (
	"encoding/csv"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// sampleSheetName is the fixed-location sheet dropped next to the
// demultiplexed data by the sequencing facility.
const sampleSheetName = "SampleSheet.csv"

var sheetSampleColumns = []string{"Sample_ID", "SampleID", "Sample_Name"}
var sheetLibprepColumns = []string{"Library_Prep", "LibraryPrep", "Libprep"}

// sampleSheet maps sample name -> library prep, parsed from the
// on-disk sheet. It is the first and most trusted source in the
// libprep resolution chain because it is locally verifiable.
type sampleSheet struct {
	libpreps map[string]string
}

// loadSampleSheet parses the sheet in dir. A missing sheet returns
// (nil, nil): absence just moves resolution down the chain.
func loadSampleSheet(dir string) (*sampleSheet, error) {
	f, err := os.Open(strings.TrimSuffix(dir, "/") + "/" + sampleSheetName)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "open sample sheet")
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "parse sample sheet")
	}

	// Illumina sheets carry a [Data] section; plain CSVs start at
	// the header directly.
	start := 0
	for i, rec := range records {
		if len(rec) > 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "[Data]") {
			start = i + 1
			break
		}
	}

	if start >= len(records) {
		return nil, errors.New("sample sheet has no data section")
	}

	header := records[start]
	sampleCol := findColumn(header, sheetSampleColumns)
	libprepCol := findColumn(header, sheetLibprepColumns)
	if sampleCol < 0 || libprepCol < 0 {
		return nil, errors.New("sample sheet is missing sample or libprep columns")
	}

	sheet := &sampleSheet{libpreps: map[string]string{}}
	for _, rec := range records[start+1:] {
		if len(rec) <= sampleCol || len(rec) <= libprepCol {
			continue
		}
		sample := strings.TrimSpace(rec[sampleCol])
		libprep := strings.TrimSpace(rec[libprepCol])
		if sample == "" || libprep == "" {
			continue
		}
		sheet.libpreps[sample] = libprep
	}

	return sheet, nil
}

// libprepFor returns the sheet's libprep for the sample, if any.
func (s *sampleSheet) libprepFor(sample string) (string, bool) {
	if s == nil {
		return "", false
	}
	lp, ok := s.libpreps[sample]
	return lp, ok
}

func findColumn(header []string, candidates []string) int {
	for i, col := range header {
		for _, want := range candidates {
			if strings.EqualFold(strings.TrimSpace(col), want) {
				return i
			}
		}
	}
	return -1
}
