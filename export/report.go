package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"time"

	"wastewatch/models"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
)

var ErrUnsupportedFormat = errors.New("unsupported report format")

// Report is a point-in-time view of plants, devices and their latest faults
type Report struct {
	GeneratedAt time.Time
	Plants      []models.Plant
	Devices     []DeviceRow
}

// DeviceRow is a device with its latest evaluation, if any
type DeviceRow struct {
	Device     models.Device
	Evaluation *models.Evaluation
}

// Format describes a rendered report for HTTP delivery
type Format struct {
	ContentType string
	Extension   string
	build       func(*Report) ([]byte, error)
}

var formats = map[string]Format{
	"pdf":  {ContentType: "application/pdf", Extension: "pdf", build: BuildReportPDF},
	"xlsx": {ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", Extension: "xlsx", build: BuildReportXLSX},
	"csv":  {ContentType: "text/csv", Extension: "csv", build: BuildReportCSV},
}

// Render builds the report in the named format
func Render(report *Report, name string) ([]byte, Format, error) {
	format, ok := formats[strings.ToLower(name)]
	if !ok {
		return nil, Format{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
	data, err := format.build(report)
	if err != nil {
		return nil, Format{}, fmt.Errorf("failed to build %s report: %w", format.Extension, err)
	}
	return data, format, nil
}

func (r DeviceRow) severity() string {
	if r.Evaluation == nil {
		return "-"
	}
	return string(r.Evaluation.Severity)
}

func (r DeviceRow) faultSummary() string {
	if r.Evaluation == nil || len(r.Evaluation.Faults) == 0 {
		return ""
	}
	parts := make([]string, 0, len(r.Evaluation.Faults))
	for _, f := range r.Evaluation.Faults {
		parts = append(parts, fmt.Sprintf("%s %.2f", f.Parameter, f.Value))
	}
	return strings.Join(parts, "; ")
}

func formatLastSeen(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format("2006-01-02 15:04")
}

// BuildReportPDF renders the report as a one-page-per-section PDF
func BuildReportPDF(report *Report) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Treatment Plant Status Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", report.GeneratedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Plants: %d   Devices: %d", len(report.Plants), len(report.Devices)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(100, 6, "Location", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Type", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Devices", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Status", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, plant := range report.Plants {
		pdf.CellFormat(100, 6, plant.Location, "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, string(plant.Type), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%d", plant.DeviceCount), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, string(plant.Status), "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.Ln(6)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(45, 6, "Device", "1", 0, "C", false, 0, "")
	pdf.CellFormat(55, 6, "Location", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Status", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Last Seen", "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 6, "Severity", "1", 0, "C", false, 0, "")
	pdf.CellFormat(95, 6, "Faults", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, row := range report.Devices {
		pdf.CellFormat(45, 6, row.Device.ID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(55, 6, row.Device.Location, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, string(row.Device.Status), "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 6, formatLastSeen(row.Device.LastSeen), "1", 0, "C", false, 0, "")
		pdf.CellFormat(20, 6, row.severity(), "1", 0, "C", false, 0, "")
		pdf.CellFormat(95, 6, row.faultSummary(), "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildReportXLSX renders the report with a plants sheet and a devices sheet
func BuildReportXLSX(report *Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	plantsSheet := "plants"
	devicesSheet := "devices"
	f.SetSheetName("Sheet1", plantsSheet)
	if _, err := f.NewSheet(devicesSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(plantsSheet, "A1", "Location")
	_ = f.SetCellValue(plantsSheet, "B1", "Type")
	_ = f.SetCellValue(plantsSheet, "C1", "Devices")
	_ = f.SetCellValue(plantsSheet, "D1", "Status")
	for i, plant := range report.Plants {
		row := i + 2
		_ = f.SetCellValue(plantsSheet, fmt.Sprintf("A%d", row), plant.Location)
		_ = f.SetCellValue(plantsSheet, fmt.Sprintf("B%d", row), string(plant.Type))
		_ = f.SetCellValue(plantsSheet, fmt.Sprintf("C%d", row), plant.DeviceCount)
		_ = f.SetCellValue(plantsSheet, fmt.Sprintf("D%d", row), string(plant.Status))
	}

	_ = f.SetCellValue(devicesSheet, "A1", "Device")
	_ = f.SetCellValue(devicesSheet, "B1", "Name")
	_ = f.SetCellValue(devicesSheet, "C1", "Location")
	_ = f.SetCellValue(devicesSheet, "D1", "Status")
	_ = f.SetCellValue(devicesSheet, "E1", "Last Seen")
	_ = f.SetCellValue(devicesSheet, "F1", "Severity")
	_ = f.SetCellValue(devicesSheet, "G1", "Faults")
	for i, r := range report.Devices {
		row := i + 2
		_ = f.SetCellValue(devicesSheet, fmt.Sprintf("A%d", row), r.Device.ID)
		_ = f.SetCellValue(devicesSheet, fmt.Sprintf("B%d", row), r.Device.Name)
		_ = f.SetCellValue(devicesSheet, fmt.Sprintf("C%d", row), r.Device.Location)
		_ = f.SetCellValue(devicesSheet, fmt.Sprintf("D%d", row), string(r.Device.Status))
		_ = f.SetCellValue(devicesSheet, fmt.Sprintf("E%d", row), formatLastSeen(r.Device.LastSeen))
		_ = f.SetCellValue(devicesSheet, fmt.Sprintf("F%d", row), r.severity())
		_ = f.SetCellValue(devicesSheet, fmt.Sprintf("G%d", row), r.faultSummary())
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildReportCSV renders one row per device
func BuildReportCSV(report *Report) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	_ = w.Write([]string{"device_id", "name", "location", "status", "last_seen", "severity", "faults"})
	for _, r := range report.Devices {
		_ = w.Write([]string{
			r.Device.ID,
			r.Device.Name,
			r.Device.Location,
			string(r.Device.Status),
			formatLastSeen(r.Device.LastSeen),
			r.severity(),
			r.faultSummary(),
		})
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
