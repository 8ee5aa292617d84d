package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMinor(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    int64
		wantErr error
	}{
		{name: "whole dollars", in: "10", want: 1000},
		{name: "two decimals", in: "4.50", want: 450},
		{name: "one cent", in: "0.01", want: 1},
		{name: "zero", in: "0", want: 0},
		{name: "trailing zeros beyond cents", in: "1.2300", want: 123},
		{name: "fractional cent", in: "0.005", wantErr: ErrFractionalCent},
		{name: "negative", in: "-1.00", wantErr: ErrNegative},
		{name: "largest representable", in: "92233720368547758.07", want: 9223372036854775807},
		{name: "one cent past int64", in: "92233720368547758.08", wantErr: ErrOutOfRange},
		{name: "wraps to one cent", in: "184467440737095516.17", wantErr: ErrOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToMinor(decimal.RequireFromString(tt.in))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "15.00", Format(1500))
	assert.Equal(t, "0.01", Format(1))
	assert.Equal(t, "4.50", Format(450))
	assert.True(t, FromMinor(900).Equal(decimal.RequireFromString("9")))
}
