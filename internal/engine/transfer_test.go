package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Veraticus/policybook/internal/model"
	"github.com/Veraticus/policybook/internal/sheets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadClientsCSV(t *testing.T) {
	input := `Email,Name,Insurance Company,car_model,CAR_YEAR,Price,Next Payment
jan@example.com,Jan Kowalski,pzu,Toyota Corolla,2018,1000,2025-09-01
ola@example.com,Ola Nowak,Warta,Skoda Fabia,2015,cheap,2025-09-02
,No Email,PZU,Fiat,2010,300,2025-09-03
ala@example.com,Ala Lis,Allianz,VW Golf,2020,1500,2025-09-04
`
	clients, rowErrs, err := ReadClientsCSV(strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, clients, 2)
	assert.Equal(t, model.Client{
		Name:             "Jan Kowalski",
		Email:            "jan@example.com",
		InsuranceCompany: "pzu",
		CarModel:         "Toyota Corolla",
		CarYear:          2018,
		Price:            1000,
		NextPayment:      "2025-09-01",
	}, clients[0])
	assert.Equal(t, "ala@example.com", clients[1].Email)

	require.Len(t, rowErrs, 2)
	assert.Contains(t, rowErrs[0].Error(), "line 3")
	assert.Contains(t, rowErrs[0].Error(), `price "cheap"`)
	assert.Contains(t, rowErrs[1].Error(), "line 4")
	assert.ErrorIs(t, rowErrs[1], model.ErrInvalidClient)
}

func TestReadClientsCSV_BadHeader(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty input", input: "", want: "reading header"},
		{name: "missing column", input: "NAME,EMAIL\nJan,jan@example.com\n", want: "missing column INSURANCE_COMPANY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ReadClientsCSV(strings.NewReader(tt.input))
			require.ErrorIs(t, err, ErrMalformedCSV)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestReadClientsCSV_ShortRow(t *testing.T) {
	input := "NAME,EMAIL,INSURANCE_COMPANY,CAR_MODEL,CAR_YEAR,PRICE,NEXT_PAYMENT\nJan,jan@example.com,PZU\n"
	clients, rowErrs, err := ReadClientsCSV(strings.NewReader(input))
	require.NoError(t, err)
	assert.Empty(t, clients)
	require.Len(t, rowErrs, 1)
	assert.ErrorIs(t, rowErrs[0], ErrMalformedCSV)
}

func TestClientEngine_ImportClients(t *testing.T) {
	f := newFixture(t, client("Jan", "jan@example.com", "PZU", "2025-09-01", 1000))

	incoming := []model.Client{
		client("Jan Again", "jan@example.com", "PZU", "2025-09-01", 1000),
		client("Ola", "ola@example.com", "WARTA", "2025-09-02", 800),
		client("Ala", "ala@example.com", "ALLIANZ", "2025-09-03", 600),
		client("Ola Twin", "ola@example.com", "WARTA", "2025-09-02", 800),
	}

	var ticks int
	result, err := f.engine.ImportClients(context.Background(), incoming, func() { ticks++ })
	require.NoError(t, err)

	assert.Equal(t, []string{"ola@example.com", "ala@example.com"}, result.Added)
	assert.Equal(t, []string{"jan@example.com", "ola@example.com"}, result.Duplicates)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 4, ticks)
	assert.Equal(t, []string{"jan@example.com", "ola@example.com", "ala@example.com"}, emails(t, f))
}

func TestClientEngine_ImportClients_Canceled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.ImportClients(ctx, []model.Client{client("Ola", "ola@example.com", "PZU", "2025-09-02", 800)}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, emails(t, f))
}

func TestClientEngine_ExportClients(t *testing.T) {
	f := newFixture(t,
		client("Jan", "jan@example.com", "PZU", "2025-09-01", 1000),
		client("Ola", "ola@example.com", "WARTA", "2025-09-02", 800),
	)

	exporter := sheets.NewMockExporter()
	count, err := f.engine.ExportClients(context.Background(), exporter)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	calls := exporter.GetExportCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "ola@example.com", calls[0].Clients[1].Email)

	exporter.SetExportError(errors.New("quota exceeded"))
	_, err = f.engine.ExportClients(context.Background(), exporter)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to export 2 clients")
}
