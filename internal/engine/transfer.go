package engine

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Veraticus/policybook/internal/common"
	"github.com/Veraticus/policybook/internal/model"
	"github.com/Veraticus/policybook/internal/service"
	"github.com/jszwec/csvutil"
)

// ErrMalformedCSV is returned for CSV input that cannot be read as clients.
var ErrMalformedCSV = errors.New("malformed client CSV")

// csvColumns are the recognized CSV headers in client field order.
var csvColumns = []string{"NAME", "EMAIL", "INSURANCE_COMPANY", "CAR_MODEL", "CAR_YEAR", "PRICE", "NEXT_PAYMENT"}

// csvClient is one decoded CSV row. Numbers stay text so that a bad value
// can be reported with the offending input.
type csvClient struct {
	Name             string `csv:"NAME"`
	Email            string `csv:"EMAIL"`
	InsuranceCompany string `csv:"INSURANCE_COMPANY"`
	CarModel         string `csv:"CAR_MODEL"`
	CarYear          string `csv:"CAR_YEAR"`
	Price            string `csv:"PRICE"`
	NextPayment      string `csv:"NEXT_PAYMENT"`
}

// ImportResult summarizes a bulk import.
type ImportResult struct {
	Added      []string
	Duplicates []string
	Errors     []error
}

// ReadClientsCSV parses clients from CSV with a header row naming the client
// columns in any order. Headers match case-insensitively, with spaces and
// underscores interchangeable. Rows that fail to parse are reported in the
// returned error slice and skipped.
func ReadClientsCSV(r io.Reader) ([]model.Client, []error, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: reading header: %w", ErrMalformedCSV, err)
	}

	present := make(map[string]bool, len(header))
	for i, h := range header {
		header[i] = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(h), " ", "_"))
		present[header[i]] = true
	}
	for _, col := range csvColumns {
		if !present[col] {
			return nil, nil, fmt.Errorf("%w: missing column %s", ErrMalformedCSV, col)
		}
	}

	dec, err := csvutil.NewDecoder(reader, header...)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrMalformedCSV, err)
	}

	var clients []model.Client
	var rowErrs []error
	for {
		var row csvClient
		err := dec.Decode(&row)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, csvutil.ErrFieldCount) {
			line, _ := reader.FieldPos(0)
			rowErrs = append(rowErrs, fmt.Errorf("line %d: %w: expected %d fields", line, ErrMalformedCSV, len(header)))
			continue
		}
		if err != nil {
			// csv.ParseError already names the line.
			rowErrs = append(rowErrs, err)
			continue
		}
		line, _ := reader.FieldPos(0)

		client, err := row.client()
		if err != nil {
			rowErrs = append(rowErrs, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		clients = append(clients, client)
	}

	return clients, rowErrs, nil
}

func (r csvClient) client() (model.Client, error) {
	yearText := strings.TrimSpace(r.CarYear)
	year, err := strconv.Atoi(yearText)
	if err != nil {
		return model.Client{}, fmt.Errorf("%w: car year %q", model.ErrInvalidClient, yearText)
	}
	priceText := strings.TrimSpace(r.Price)
	price, err := strconv.Atoi(priceText)
	if err != nil {
		return model.Client{}, fmt.Errorf("%w: price %q", model.ErrInvalidClient, priceText)
	}
	client := model.Client{
		Name:             strings.TrimSpace(r.Name),
		Email:            strings.TrimSpace(r.Email),
		InsuranceCompany: strings.TrimSpace(r.InsuranceCompany),
		CarModel:         strings.TrimSpace(r.CarModel),
		CarYear:          year,
		Price:            price,
		NextPayment:      strings.TrimSpace(r.NextPayment),
	}
	if err := client.Validate(); err != nil {
		return model.Client{}, err
	}
	return client, nil
}

// ImportClients adds each client, skipping emails already in the book.
// progress, when set, is called once per processed client.
func (e *ClientEngine) ImportClients(ctx context.Context, clients []model.Client, progress func()) (ImportResult, error) {
	var result ImportResult
	for _, c := range clients {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		err := e.AddClient(ctx, c)
		switch {
		case err == nil:
			result.Added = append(result.Added, c.Email)
		case errors.Is(err, common.ErrDuplicateEntry):
			result.Duplicates = append(result.Duplicates, c.Email)
		default:
			result.Errors = append(result.Errors, err)
		}

		if progress != nil {
			progress()
		}
	}

	slog.Info("Imported clients",
		"added", len(result.Added),
		"duplicates", len(result.Duplicates),
		"errors", len(result.Errors))
	return result, nil
}

// ExportClients hands the current client list to the exporter.
func (e *ClientEngine) ExportClients(ctx context.Context, exporter service.ClientExporter) (int, error) {
	clients, err := e.Clients(ctx)
	if err != nil {
		return 0, err
	}
	if err := exporter.Export(ctx, clients); err != nil {
		return 0, fmt.Errorf("failed to export %d clients: %w", len(clients), err)
	}
	return len(clients), nil
}
