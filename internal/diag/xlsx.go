package diag

import (
	"fmt"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// WriteWorkbook renders the report as an xlsx workbook with a run summary
// sheet and a per-extractor sheet.
func WriteWorkbook(path string, r *Report) error {
	f := xlsx.NewFile()

	summary, err := f.AddSheet("summary")
	if err != nil {
		return eris.Wrap(err, "diag: add summary sheet")
	}
	addRow(summary, "metric", "value")
	addRow(summary, "documents", strconv.Itoa(r.Documents))
	addRow(summary, "unresolved", strconv.Itoa(r.Unresolved))
	addRow(summary, "duplicates", strconv.Itoa(r.Duplicates))
	addRow(summary, "enriched", strconv.Itoa(r.Enriched))
	addRow(summary, "enrichment_overrides", strconv.Itoa(r.Overrides))
	addRow(summary, "enrichment_failures", strconv.Itoa(r.EnrichFailed))
	addRow(summary, "resolved_fields", strconv.Itoa(r.ResolvedFields))

	sheet, err := f.AddSheet("extractors")
	if err != nil {
		return eris.Wrap(err, "diag: add extractors sheet")
	}
	addRow(sheet, "extractor", "proposals", "wins", "agreements", "overridden", "sole", "degraded",
		"agreement_rate", "win_rate", "override_rate", "contribution_rate")
	for _, s := range r.Extractors {
		addRow(sheet,
			s.Extractor,
			strconv.Itoa(s.Proposals),
			strconv.Itoa(s.Wins),
			strconv.Itoa(s.Agreements),
			strconv.Itoa(s.Overridden),
			strconv.Itoa(s.Sole),
			strconv.Itoa(s.Degraded),
			fmt.Sprintf("%.3f", s.AgreementRate()),
			fmt.Sprintf("%.3f", s.WinRate()),
			fmt.Sprintf("%.3f", s.OverrideRate()),
			fmt.Sprintf("%.3f", s.ContributionRate(r.ResolvedFields)),
		)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "diag: save workbook %s", path)
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, cells ...string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().Value = c
	}
}
