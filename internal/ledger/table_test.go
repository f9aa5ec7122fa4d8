package ledger

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/policybook/internal/common"
	"github.com/Veraticus/policybook/internal/excel"
	"github.com/Veraticus/policybook/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var fixedNow = time.Date(2025, 8, 20, 9, 30, 0, 0, time.UTC)

func openTestTable(t *testing.T, mutate ...func(*Options)) *ClientTable {
	t.Helper()
	opts := Options{
		Path:   filepath.Join(t.TempDir(), "clients.xlsx"),
		Layout: DefaultLayout(),
		Styles: DefaultStyles(),
		Now:    func() time.Time { return fixedNow },
	}
	for _, m := range mutate {
		m(&opts)
	}
	table, err := Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = table.Close() })
	return table
}

func testClient(name, email, company, due string) model.Client {
	return model.Client{
		Name:             name,
		Email:            email,
		InsuranceCompany: company,
		CarModel:         "Skoda Octavia",
		CarYear:          2013,
		Price:            700,
		NextPayment:      due,
	}
}

func cell(t *testing.T, table *ClientTable, ref string) string {
	t.Helper()
	v, err := table.wb.File().GetCellValue(table.wb.Sheet(), ref, excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	return v
}

func formula(t *testing.T, table *ClientTable, ref string) string {
	t.Helper()
	f, err := table.wb.File().GetCellFormula(table.wb.Sheet(), ref)
	require.NoError(t, err)
	return f
}

func fillColor(t *testing.T, table *ClientTable, ref string) string {
	t.Helper()
	id, err := table.wb.File().GetCellStyle(table.wb.Sheet(), ref)
	require.NoError(t, err)
	style, err := table.wb.File().GetStyle(id)
	require.NoError(t, err)
	if len(style.Fill.Color) == 0 {
		return ""
	}
	return strings.ToUpper(strings.TrimPrefix(style.Fill.Color[0], "#"))
}

// companySummary reads the company table as label -> COUNTIF formula.
func companySummary(t *testing.T, table *ClientTable) ([]string, []string) {
	t.Helper()
	var labels, formulas []string
	for row := 2; ; row++ {
		label := cell(t, table, "I"+strconv.Itoa(row))
		if label == "" {
			break
		}
		labels = append(labels, label)
		formulas = append(formulas, formula(t, table, "J"+strconv.Itoa(row)))
	}
	return labels, formulas
}

func TestOpen_WritesHeadersAndSummaries(t *testing.T) {
	table := openTestTable(t)

	_, err := os.Stat(table.Path())
	require.NoError(t, err, "workbook is persisted on open")

	assert.Equal(t, "NAME", cell(t, table, "A1"))
	assert.Equal(t, "INSURANCE COMPANY", cell(t, table, "C1"))
	assert.Equal(t, "NEXT PAYMENT", cell(t, table, "G1"))
	assert.Equal(t, "INSURANCE COMPANY", cell(t, table, "I1"))
	assert.Equal(t, "CLIENT", cell(t, table, "J1"))

	assert.Equal(t, "People", cell(t, table, "L1"))
	assert.Equal(t, "Gross PLN", cell(t, table, "L2"))
	assert.Equal(t, "Ratio", cell(t, table, "L3"))
	assert.Equal(t, "Net PLN", cell(t, table, "L4"))
	assert.Equal(t, "COUNTA(A2:A1000)", formula(t, table, "M1"))
	assert.Equal(t, "SUM(F2:F1000)", formula(t, table, "M2"))
	assert.Equal(t, "M2*M3", formula(t, table, "M4"))

	raw, err := table.wb.Value(13, 3)
	require.NoError(t, err)
	assert.Equal(t, "0.74", raw)

	assert.Equal(t, "4CAF50", fillColor(t, table, "A1"))
	assert.Equal(t, "4CAF50", fillColor(t, table, "L1"))
}

func TestOpen_KeepsExistingHeaders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clients.xlsx")
	opts := Options{Path: path, Layout: DefaultLayout(), Styles: DefaultStyles(), Now: func() time.Time { return fixedNow }}

	first, err := Open(opts)
	require.NoError(t, err)
	require.NoError(t, first.wb.SetValue(1, 1, "Client name"))
	require.NoError(t, first.Insert(testClient("Jan Kowalski", "jan@example.com", "PZU", "2025-09-01")))
	require.NoError(t, first.Close())

	second, err := Open(opts)
	require.NoError(t, err)
	defer func() { _ = second.Close() }()

	assert.Equal(t, "Client name", cell(t, second, "A1"))
	clients, err := second.LoadAll()
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, "jan@example.com", clients[0].Email)
}

func TestOpen_InvalidLayout(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Layout)
		wantMsg string
	}{
		{
			name:    "no main headers",
			mutate:  func(l *Layout) { l.MainHeaders = nil },
			wantMsg: "main table headers collection should have at least 1 item",
		},
		{
			name:    "company headers wrong size",
			mutate:  func(l *Layout) { l.CompanyHeaders = []string{"INSURANCE_COMPANY"} },
			wantMsg: "company table headers collection should have 2 items",
		},
		{
			name:    "summary headers wrong size",
			mutate:  func(l *Layout) { l.SummaryHeaders = []string{"A", "B", "C"} },
			wantMsg: "summary table headers collection should have 2 items",
		},
		{
			name:    "overlapping tables",
			mutate:  func(l *Layout) { l.CompanyStartCol = "F" },
			wantMsg: "overlap",
		},
		{
			name:    "unknown company column",
			mutate:  func(l *Layout) { l.CompanyColumn = "INSURER" },
			wantMsg: `column "INSURER"`,
		},
		{
			name:    "bad column letter",
			mutate:  func(l *Layout) { l.MainStartCol = "1" },
			wantMsg: `column "1"`,
		},
		{
			name:    "negative ratio",
			mutate:  func(l *Layout) { l.Ratio = -0.1 },
			wantMsg: "ratio cannot be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layout := DefaultLayout()
			tt.mutate(&layout)

			_, err := Open(Options{Path: filepath.Join(t.TempDir(), "x.xlsx"), Layout: layout})
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestOpen_InvalidStyle(t *testing.T) {
	styles := DefaultStyles()
	styles.Overdue.Fill.Color = "not-a-color"

	_, err := Open(Options{Path: filepath.Join(t.TempDir(), "x.xlsx"), Layout: DefaultLayout(), Styles: styles})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestInsertAndLoadAll(t *testing.T) {
	table := openTestTable(t)

	row, err := table.NextInsertionRow()
	require.NoError(t, err)
	assert.Equal(t, 2, row)

	jan := testClient("Jan Kowalski", "jan@example.com", "PZU", "2025-09-01")
	anna := testClient("Anna Nowak", "anna@example.com", "WARTA", "2025-10-15")
	require.NoError(t, table.Insert(jan))
	require.NoError(t, table.Insert(anna))

	clients, err := table.LoadAll()
	require.NoError(t, err)
	assert.Equal(t, []model.Client{jan, anna}, clients)

	row, err = table.NextInsertionRow()
	require.NoError(t, err)
	assert.Equal(t, 4, row)
}

func TestNextInsertionRow_ReusesGap(t *testing.T) {
	table := openTestTable(t)
	require.NoError(t, table.OverwriteAll([]model.Client{
		testClient("A", "a@example.com", "PZU", "2025-09-01"),
		testClient("B", "b@example.com", "PZU", "2025-09-01"),
		testClient("C", "c@example.com", "PZU", "2025-09-01"),
	}))
	require.NoError(t, table.wb.SetValue(1, 3, nil))

	row, err := table.NextInsertionRow()
	require.NoError(t, err)
	assert.Equal(t, 3, row)
}

func TestCompanySummary_TracksMutations(t *testing.T) {
	table := openTestTable(t)

	require.NoError(t, table.Insert(testClient("A", "a@example.com", "warta", "2025-09-01")))
	require.NoError(t, table.Insert(testClient("B", "b@example.com", "PZU", "2025-09-01")))
	require.NoError(t, table.Insert(testClient("C", "c@example.com", "pzu", "2025-09-01")))

	labels, formulas := companySummary(t, table)
	assert.Equal(t, []string{"PZU", "WARTA"}, labels)
	assert.Equal(t, []string{"COUNTIF(C2:C1000,I2)", "COUNTIF(C2:C1000,I3)"}, formulas)

	moved := testClient("A", "a@example.com", "Allianz", "2025-09-01")
	ok, err := table.UpdateByColumn(model.ColumnEmail, "a@example.com", moved)
	require.NoError(t, err)
	require.True(t, ok)

	labels, _ = companySummary(t, table)
	assert.Equal(t, []string{"ALLIANZ", "PZU"}, labels)

	ok, err = table.RemoveByColumn(model.ColumnEmail, "a@example.com")
	require.NoError(t, err)
	require.True(t, ok)

	labels, formulas = companySummary(t, table)
	assert.Equal(t, []string{"PZU"}, labels)
	assert.Equal(t, []string{"COUNTIF(C2:C1000,I2)"}, formulas)

	require.NoError(t, table.OverwriteAll(nil))
	labels, _ = companySummary(t, table)
	assert.Empty(t, labels)
}

func TestUppercaseColumns(t *testing.T) {
	table := openTestTable(t, func(o *Options) {
		o.Layout.UppercaseColumns = []string{"C"}
	})

	require.NoError(t, table.Insert(testClient("Jan", "jan@example.com", "warta", "2025-09-01")))

	assert.Equal(t, "WARTA", cell(t, table, "C2"))
	assert.Equal(t, "Jan", cell(t, table, "A2"))
}

func TestUpdateByColumn_NoMatch(t *testing.T) {
	table := openTestTable(t)
	require.NoError(t, table.Insert(testClient("Jan", "jan@example.com", "PZU", "2025-09-01")))

	ok, err := table.UpdateByColumn(model.ColumnEmail, "nobody@example.com", testClient("X", "x@example.com", "PZU", "2025-09-01"))
	require.NoError(t, err)
	assert.False(t, ok)

	clients, err := table.LoadAll()
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, "Jan", clients[0].Name)
}

func TestShiftDate(t *testing.T) {
	table := openTestTable(t)
	require.NoError(t, table.Insert(testClient("Jan", "jan@example.com", "PZU", "2025-08-15")))
	require.NoError(t, table.Insert(testClient("Anna", "anna@example.com", "PZU", "2025-08-15")))

	ok, err := table.ShiftDate(model.ColumnEmail, "jan@example.com", model.ColumnNextPayment, 30)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2025-09-14", cell(t, table, "G2"))

	for _, days := range []int{10, 20} {
		ok, err = table.ShiftDate(model.ColumnEmail, "anna@example.com", model.ColumnNextPayment, days)
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Equal(t, cell(t, table, "G2"), cell(t, table, "G3"), "shifts compose additively")

	ok, err = table.ShiftDate(model.ColumnEmail, "nobody@example.com", model.ColumnNextPayment, 30)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestShiftDate_NativeAndInvalidDates(t *testing.T) {
	table := openTestTable(t)
	require.NoError(t, table.Insert(testClient("Jan", "jan@example.com", "PZU", "2025-08-15")))
	require.NoError(t, table.Insert(testClient("Anna", "anna@example.com", "PZU", "soon")))
	require.NoError(t, table.wb.SetValue(7, 2, time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)))

	ok, err := table.ShiftDate(model.ColumnEmail, "jan@example.com", model.ColumnNextPayment, 30)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2025-03-02", cell(t, table, "G2"))

	ok, err = table.ShiftDate(model.ColumnEmail, "anna@example.com", model.ColumnNextPayment, 30)
	require.NoError(t, err)
	assert.False(t, ok, "non-date cells are left alone")
	assert.Equal(t, "soon", cell(t, table, "G3"))

	require.NoError(t, table.wb.SetValue(7, 3, 5))
	ok, err = table.ShiftDate(model.ColumnEmail, "anna@example.com", model.ColumnNextPayment, 30)
	require.NoError(t, err)
	assert.False(t, ok, "a plain number is not a date")
	assert.Equal(t, "5", cell(t, table, "G3"))
}

func TestRemoveByColumn_ShiftsRowsUp(t *testing.T) {
	table := openTestTable(t)
	require.NoError(t, table.Insert(testClient("A", "a@example.com", "PZU", "2025-09-01")))
	require.NoError(t, table.Insert(testClient("B", "b@example.com", "PZU", "2025-09-01")))
	require.NoError(t, table.Insert(testClient("C", "c@example.com", "PZU", "2025-09-01")))

	ok, err := table.RemoveByColumn(model.ColumnEmail, "b@example.com")
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "A", cell(t, table, "A2"))
	assert.Equal(t, "C", cell(t, table, "A3"))
	assert.Empty(t, cell(t, table, "A4"))

	ok, err = table.RemoveByColumn(model.ColumnEmail, "b@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOverwriteAll_RoundTrip(t *testing.T) {
	table := openTestTable(t)
	for _, c := range []model.Client{
		testClient("A", "a@example.com", "PZU", "2025-09-01"),
		testClient("B", "b@example.com", "WARTA", "2025-09-02"),
		testClient("C", "c@example.com", "PZU", "2025-09-03"),
	} {
		require.NoError(t, table.Insert(c))
	}

	clients, err := table.LoadAll()
	require.NoError(t, err)
	require.NoError(t, table.OverwriteAll(clients))

	again, err := table.LoadAll()
	require.NoError(t, err)
	assert.Equal(t, clients, again)

	require.NoError(t, table.OverwriteAll(clients[:1]))
	shrunk, err := table.LoadAll()
	require.NoError(t, err)
	assert.Equal(t, clients[:1], shrunk)
	assert.Empty(t, cell(t, table, "A3"))
}

func TestLoadAll_SkipsMalformedRows(t *testing.T) {
	table := openTestTable(t)
	require.NoError(t, table.Insert(testClient("Good", "good@example.com", "PZU", "2025-09-01")))

	require.NoError(t, table.wb.WriteRow([]any{"NoYear", "ny@example.com", "PZU", "Fiat", "abc", 500, "2025-09-01"}, 3, 1))
	require.NoError(t, table.wb.WriteRow([]any{"Blank", "", "PZU", "Fiat", 2010, 500, "2025-09-01"}, 4, 1))
	require.NoError(t, table.wb.WriteRow([]any{"Float", "f@example.com", "PZU", "Fiat", "2010.0", "450.0", "2025-09-01"}, 5, 1))
	require.NoError(t, table.wb.WriteRow([]any{"Native", "n@example.com", "PZU", "Fiat", 2011, 300}, 6, 1))
	require.NoError(t, table.wb.SetValue(7, 6, time.Date(2025, 12, 24, 0, 0, 0, 0, time.UTC)))

	clients, err := table.LoadAll()
	require.NoError(t, err)
	require.Len(t, clients, 3)
	assert.Equal(t, "Good", clients[0].Name)
	assert.Equal(t, "Float", clients[1].Name)
	assert.Equal(t, 2010, clients[1].CarYear)
	assert.Equal(t, 450, clients[1].Price)
	assert.Equal(t, "Native", clients[2].Name)
	assert.Equal(t, "2025-12-24", clients[2].NextPayment)
}

func TestSave_HighlightsOverdueRows(t *testing.T) {
	table := openTestTable(t)
	require.NoError(t, table.Insert(testClient("Past", "past@example.com", "PZU", "2025-08-19")))
	require.NoError(t, table.Insert(testClient("Today", "today@example.com", "PZU", "2025-08-20")))
	require.NoError(t, table.Insert(testClient("Future", "future@example.com", "PZU", "2025-08-21")))
	require.NoError(t, table.Insert(testClient("Broken", "broken@example.com", "PZU", "someday")))

	assert.Equal(t, "FFCCCC", fillColor(t, table, "A2"))
	assert.Equal(t, "FFCCCC", fillColor(t, table, "G2"))
	assert.Equal(t, "FFCCCC", fillColor(t, table, "A3"))
	assert.Equal(t, "D9EAD3", fillColor(t, table, "A4"))
	assert.Equal(t, "D9EAD3", fillColor(t, table, "A5"))

	ok, err := table.ShiftDate(model.ColumnEmail, "past@example.com", model.ColumnNextPayment, 30)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "D9EAD3", fillColor(t, table, "A2"), "paid rows lose the overdue highlight")
}

func TestSave_ClearsOverdueFillWithoutRowFill(t *testing.T) {
	table := openTestTable(t, func(o *Options) {
		o.Styles.Row = &excel.CellStyle{Font: &excel.Font{Name: "Calibri", Size: 11}}
	})
	require.NoError(t, table.Insert(testClient("Past", "past@example.com", "PZU", "2025-08-19")))
	require.Equal(t, "FFCCCC", fillColor(t, table, "A2"))

	ok, err := table.ShiftDate(model.ColumnEmail, "past@example.com", model.ColumnNextPayment, 30)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, fillColor(t, table, "A2"))
	assert.Empty(t, fillColor(t, table, "G2"))
}

func TestSave_FormatsMetrics(t *testing.T) {
	table := openTestTable(t)
	require.NoError(t, table.Insert(testClient("Jan", "jan@example.com", "PZU", "2025-09-01")))

	for ref, want := range map[string]string{"M2": "0", "M3": "0.00", "M4": "0"} {
		id, err := table.wb.File().GetCellStyle(table.wb.Sheet(), ref)
		require.NoError(t, err)
		style, err := table.wb.File().GetStyle(id)
		require.NoError(t, err)
		require.NotNil(t, style.CustomNumFmt, ref)
		assert.Equal(t, want, *style.CustomNumFmt, ref)
	}
}
