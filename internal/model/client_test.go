package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_FormatsDate(t *testing.T) {
	c := NewClient("Jan Nowak", "jan@example.com", "PZU", "Audi A5", 2013, 2500,
		time.Date(2025, 8, 18, 15, 30, 0, 0, time.UTC))

	assert.Equal(t, "2025-08-18", c.NextPayment)
	assert.Equal(t, []any{"Jan Nowak", "jan@example.com", "PZU", "Audi A5", 2013, 2500, "2025-08-18"}, c.Values())
	assert.Len(t, c.Values(), ClientFieldCount)
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{name: "iso date", input: "2025-08-15", want: time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC)},
		{name: "with time suffix", input: "2025-08-15 00:00:00", want: time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC)},
		{name: "empty", input: "", wantErr: true},
		{name: "garbage", input: "next tuesday", wantErr: true},
		{name: "wrong layout", input: "15.08.2025", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got))
		})
	}
}

func TestClient_Validate(t *testing.T) {
	valid := NewClient("Jan", "jan@example.com", "PZU", "Audi", 2013, 100, time.Now())
	require.NoError(t, valid.Validate())

	missingEmail := valid
	missingEmail.Email = "  "
	assert.ErrorIs(t, missingEmail.Validate(), ErrInvalidClient)

	badEmail := valid
	badEmail.Email = "jan.example.com"
	assert.ErrorIs(t, badEmail.Validate(), ErrInvalidClient)

	badDate := valid
	badDate.NextPayment = "soon"
	assert.ErrorIs(t, badDate.Validate(), ErrInvalidClient)
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2025, 8, 10, 23, 59, 0, 0, time.UTC)
	b := time.Date(2025, 8, 15, 0, 1, 0, 0, time.UTC)
	assert.Equal(t, 5, DaysBetween(a, b))
	assert.Equal(t, -5, DaysBetween(b, a))
}
