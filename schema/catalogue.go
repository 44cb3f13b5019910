package schema

import (
	"fmt"
	"strings"
)

var dailyReports = Table{
	Name:  "daily_reports",
	Query: "DSR",
	Columns: []Column{
		{"UID", "VARCHAR(255)"},
		{"DailyReportID", "VARCHAR(255)"},
		{"ContractorCompany", "VARCHAR(255)"},
		{"ContracteeCompany", "VARCHAR(255)"},
		{"Contract", "VARCHAR(255)"},
		{"Project", "VARCHAR(255)"},
		{"Drill", "VARCHAR(255)"},
		{"ReportDate", "TIMESTAMP"},
		{"Status", "VARCHAR(50)"},
		{"Supervisor", "VARCHAR(255)"},
		{"Shift", "VARCHAR(50)"},
		{"ValidatedBy", "VARCHAR(255)"},
		{"ValidatedDate", "TIMESTAMP"},
		{"ApprovedBy", "VARCHAR(255)"},
		{"ApprovedDate", "TIMESTAMP"},
		{"DeletedFlag", "CHAR(1)"},
		{"ExportDateTime", "TIMESTAMP"},
		{"ContractID", "INTEGER"},
	},
}

var dsrActivity = Table{
	Name:  "dsr_activity",
	Query: "DSRActivity",
	Columns: []Column{
		{"UID", "VARCHAR(255)"},
		{"DailyReportID", "INTEGER"},
		{"HoleID", "INTEGER"},
		{"Hole", "VARCHAR(255)"},
		{"Activity", "VARCHAR(255)"},
		{"Type", "VARCHAR(255)"},
		{"BitSize", "VARCHAR(50)"},
		{"DistanceDrilledFrom", "FLOAT"},
		{"DistanceDrilledTo", "FLOAT"},
		{"Distance", "FLOAT"},
		{"Depth", "FLOAT"},
		{"Billable", "CHAR(1)"},
		{"ActivityHours", "FLOAT"},
		{"TotalManHours", "FLOAT"},
		{"Penetration", "FLOAT"},
		{"BillingType", "VARCHAR(50)"},
		{"DistanceFromToUnitAbbr", "VARCHAR(50)"},
		{"DistanceUnitAbbr", "VARCHAR(50)"},
		{"DepthUnitAbbr", "VARCHAR(50)"},
		{"TotalCharges", "FLOAT"},
		{"CurrencyCode", "VARCHAR(10)"},
		{"DeletedFlag", "CHAR(1)"},
		{"ExportDateTime", "TIMESTAMP"},
		{"WorkSubCategoryID", "INTEGER"},
		{"WorkSubCategoryTypeID", "INTEGER"},
		{"DataDeleted", "CHAR(1)"},
		{"ChargeFrom", "FLOAT"},
		{"ChargeTo", "FLOAT"},
		{"Comments", "TEXT"},
		{"BitSizeID", "INTEGER"},
	},
}

var dsrActivityEquipment = Table{
	Name:  "dsr_activity_equipment",
	Query: "DSRActivityEquipment",
	Columns: []Column{
		{"UID", "VARCHAR(255)"},
		{"DailyReportID", "INTEGER"},
		{"HoleID", "INTEGER"},
		{"Hole", "VARCHAR(255)"},
		{"Activity", "VARCHAR(255)"},
		{"Equipment", "VARCHAR(255)"},
		{"EquipmentHours", "FLOAT"},
		{"EquipmentUnit", "VARCHAR(50)"},
		{"BillingType", "VARCHAR(50)"},
		{"TotalCharges", "FLOAT"},
		{"CurrencyCode", "VARCHAR(10)"},
		{"DeletedFlag", "CHAR(1)"},
		{"ExportDateTime", "TIMESTAMP"},
		{"ContractorEquipmentID", "INTEGER"},
		{"DataDeleted", "CHAR(1)"},
	},
}

var dsrWorkersLabour = Table{
	Name:  "dsr_workers_labour",
	Query: "DSRWorkersLabour",
	Columns: []Column{
		{"UID", "VARCHAR(50)"},
		{"DailyReportID", "INTEGER"},
		{"Name", "VARCHAR(255)"},
		{"Role", "VARCHAR(100)"},
		{"PayrollHours", "NUMERIC(10,3)"},
		{"BillingType", "VARCHAR(50)"},
		{"TotalCharges", "NUMERIC(12,2)"},
		{"CurrencyCode", "CHAR(3)"},
		{"DeletedFlag", "CHAR(1)"},
		{"ExportDateTime", "TIMESTAMP"},
		{"DataDeleted", "CHAR(1)"},
	},
}

var dsrActivityLabour = Table{
	Name:  "dsr_activity_labour",
	Query: "DSRActivityLabour",
	Columns: []Column{
		{"UID", "VARCHAR(50)"},
		{"DailyReportID", "INTEGER"},
		{"Activity", "VARCHAR(255)"},
		{"Name", "VARCHAR(255)"},
		{"Role", "VARCHAR(100)"},
		{"ManHours", "NUMERIC(10,3)"},
		{"BillingType", "VARCHAR(50)"},
		{"TotalCharges", "NUMERIC(12,2)"},
		{"CurrencyCode", "CHAR(3)"},
		{"DeletedFlag", "CHAR(1)"},
		{"ExportDateTime", "TIMESTAMP"},
		{"DataDeleted", "CHAR(1)"},
	},
}

var holes = Table{
	Name:  "holes",
	Query: "Holes",
	Columns: []Column{
		{"UID", "VARCHAR(255)"},
		{"HoleID", "INTEGER"},
		{"HoleName", "VARCHAR(255)"},
		{"HoleStatus", "VARCHAR(50)"},
		{"CompleteDateTime", "TIMESTAMP"},
		{"HoleType", "VARCHAR(100)"},
		{"ContractorCompany", "VARCHAR(255)"},
		{"ContracteeCompany", "VARCHAR(255)"},
		{"Contract", "VARCHAR(255)"},
		{"Project", "VARCHAR(255)"},
		{"Plan", "VARCHAR(255)"},
		{"FirstActivityDate", "TIMESTAMP"},
		{"LastActivityDate", "TIMESTAMP"},
		{"MaxDepth", "FLOAT"},
		{"PlannedDepth", "FLOAT"},
		{"DepthUnit", "VARCHAR(50)"},
		{"TotalDistanceDrilled", "FLOAT"},
		{"TotalActivityHours", "FLOAT"},
		{"TotalDrillingHours", "FLOAT"},
		{"Penetration", "FLOAT"},
		{"Easting", "FLOAT"},
		{"Northing", "FLOAT"},
		{"UTMZone", "VARCHAR(20)"},
		{"MineGridEasting", "FLOAT"},
		{"MineGridNorthing", "FLOAT"},
		{"Elevation", "FLOAT"},
		{"ElevationUnit", "VARCHAR(50)"},
		{"PlannedAzimuth", "FLOAT"},
		{"PlannedDip", "FLOAT"},
		{"DeletedFlag", "CHAR(1)"},
		{"ExportDateTime", "TIMESTAMP"},
		{"FirstDrillingActivityDate", "TIMESTAMP"},
		{"ParentHoleID", "INTEGER"},
	},
}

// All returns the Krux tables in run order. Parents precede children.
func All() []Table {
	return []Table{dailyReports, dsrActivity, dsrActivityEquipment, dsrWorkersLabour, dsrActivityLabour, holes}
}

// Lookup finds a table by table name or export query name, ignoring case.
func Lookup(name string) (Table, bool) {
	for _, t := range All() {
		if strings.EqualFold(t.Name, name) || strings.EqualFold(t.Query, name) {
			return t, true
		}
	}
	return Table{}, false
}

// Select resolves names in catalogue order; no names selects every table.
func Select(names []string) ([]Table, error) {
	if len(names) == 0 {
		return All(), nil
	}
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		t, ok := Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown table %q", name)
		}
		wanted[t.Name] = true
	}
	selected := make([]Table, 0, len(wanted))
	for _, t := range All() {
		if wanted[t.Name] {
			selected = append(selected, t)
		}
	}
	return selected, nil
}
