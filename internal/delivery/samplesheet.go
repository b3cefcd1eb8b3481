package delivery

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/G-Research/readsizer/internal/common/sizererrors"
	"github.com/G-Research/readsizer/internal/naming"
)

const DefaultSampleSheet = "sample_sheet.csv"

var sampleSheetHeader = []string{"id", "fastq_1", "fastq_2", "outdir"}

// WriteSampleSheet writes pairs as CSV with an id,fastq_1,fastq_2,outdir header.
func WriteSampleSheet(w io.Writer, pairs []ReadPair) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(sampleSheetHeader); err != nil {
		return errors.WithStack(err)
	}
	for _, p := range pairs {
		if err := cw.Write([]string{string(p.ID), p.Forward, p.Reverse, p.OutDir}); err != nil {
			return errors.WithStack(err)
		}
	}
	cw.Flush()
	return errors.WithStack(cw.Error())
}

// ReadSampleSheet parses a sample sheet. Columns are located by header name and may appear in any order;
// the outdir column is optional and, when absent or empty, inferred from fastq_1.
func ReadSampleSheet(r io.Reader) ([]ReadPair, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.WithStack(&sizererrors.ErrInvalidArgument{Name: "sample sheet", Value: "", Message: "missing header"})
	}
	if err != nil {
		return nil, errors.Wrap(err, "error reading sample sheet header")
	}
	columns := map[string]int{}
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}
	for _, required := range sampleSheetHeader[:3] {
		if _, ok := columns[required]; !ok {
			return nil, errors.WithStack(&sizererrors.ErrInvalidArgument{
				Name:    "sample sheet",
				Value:   strings.Join(header, ","),
				Message: "missing column " + required,
			})
		}
	}
	field := func(record []string, name string) string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	pairs := []ReadPair{}
	seen := map[naming.SampleID]bool{}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "error reading sample sheet")
		}
		line, _ := cr.FieldPos(0)
		pair := ReadPair{
			ID:      naming.SampleID(field(record, "id")),
			Forward: field(record, "fastq_1"),
			Reverse: field(record, "fastq_2"),
			OutDir:  field(record, "outdir"),
		}
		if err := naming.ValidateSampleID(pair.ID); err != nil {
			return nil, errors.WithMessagef(err, "sample sheet line %d", line)
		}
		if pair.Forward == "" || pair.Reverse == "" {
			return nil, errors.WithStack(&sizererrors.ErrInvalidArgument{
				Name:    "sample sheet",
				Value:   pair.ID,
				Message: "both fastq_1 and fastq_2 are required",
			})
		}
		if seen[pair.ID] {
			return nil, errors.WithStack(&sizererrors.ErrInvalidArgument{
				Name:    "sample sheet",
				Value:   pair.ID,
				Message: "duplicate sample id",
			})
		}
		seen[pair.ID] = true
		if pair.OutDir == "" {
			pair.OutDir = naming.InferOutputDir(pair.Forward)
		}
		pair.OutDir = naming.NormalizeDir(pair.OutDir)
		pairs = append(pairs, pair)
	}
	return pairs, nil
}
