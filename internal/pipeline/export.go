package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/triage-cli/internal/model"
)

// exportColumns defines the ordered CSV output columns.
var exportColumns = []string{
	"Company Name",
	"Industry",
	"Business Model",
	"Budget",
	"Revenue",
	"Growth Goal",
	"Urgency",
	"Sentiment",
	"Notes",
	"Audit Priority Level",
	"Audit Accuracy Score",
}

// ExportRow is the serializable export shape of one final lead.
type ExportRow struct {
	CompanyName   *string              `json:"company_name"`
	Industry      *string              `json:"industry"`
	BusinessModel *model.BusinessModel `json:"business_model"`
	Budget        *string              `json:"budget"`
	Revenue       *string              `json:"revenue"`
	GrowthGoal    *string              `json:"growth_goal"`
	Urgency       *model.Urgency       `json:"urgency"`
	Sentiment     *model.Sentiment     `json:"sentiment"`
	Notes         *string              `json:"notes"`
	AuditPriority *model.Priority      `json:"audit_priority_level"`
	AuditScore    *float64             `json:"audit_accuracy_score"`
}

// ExportArtifacts holds the paths of the written output files.
type ExportArtifacts struct {
	JSONPath string
	CSVPath  string
}

// ExportLeads writes the final lead set as <fileID>.json and <fileID>.csv
// under dir, ordered by auditor priority rank descending (Urgent first).
func ExportLeads(leads []model.Lead, fileID, dir string) (*ExportArtifacts, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "export: create output dir")
	}

	sorted := make([]model.Lead, len(leads))
	copy(sorted, leads)
	model.SortLeadsByAuditPriority(sorted)

	rows := make([]ExportRow, len(sorted))
	for i, l := range sorted {
		rows[i] = ExportRow{
			CompanyName:   l.CompanyName,
			Industry:      l.Industry,
			BusinessModel: l.BusinessModel,
			Budget:        l.Budget,
			Revenue:       l.Revenue,
			GrowthGoal:    l.GrowthGoal,
			Urgency:       l.Urgency,
			Sentiment:     l.Sentiment,
			Notes:         l.Notes,
			AuditPriority: l.AuditPriority,
			AuditScore:    l.AuditScore,
		}
	}

	artifacts := &ExportArtifacts{
		JSONPath: filepath.Join(dir, fileID+".json"),
		CSVPath:  filepath.Join(dir, fileID+".csv"),
	}

	if err := writeJSON(artifacts.JSONPath, rows); err != nil {
		return nil, err
	}
	if err := writeCSV(artifacts.CSVPath, rows); err != nil {
		return nil, err
	}
	return artifacts, nil
}

func writeJSON(path string, rows []ExportRow) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "export: create json file")
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(rows), "export: write json")
}

func writeCSV(path string, rows []ExportRow) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "export: create csv file")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write(exportColumns); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	for _, r := range rows {
		record := []string{
			deref(r.CompanyName),
			deref(r.Industry),
			derefEnum(r.BusinessModel),
			deref(r.Budget),
			deref(r.Revenue),
			deref(r.GrowthGoal),
			derefEnum(r.Urgency),
			derefEnum(r.Sentiment),
			deref(r.Notes),
			derefEnum(r.AuditPriority),
			formatScore(r.AuditScore),
		}
		if err := w.Write(record); err != nil {
			return eris.Wrap(err, "export: write row")
		}
	}
	w.Flush()
	return eris.Wrap(w.Error(), "export: flush csv")
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func derefEnum[T ~string](p *T) string {
	if p == nil {
		return ""
	}
	return string(*p)
}

func formatScore(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}
