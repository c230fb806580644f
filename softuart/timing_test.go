package softuart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBitTicks(t *testing.T) {
	tests := []struct {
		name     string
		tickRate uint32
		baud     uint32
		want     uint16
		wantErr  bool
	}{
		{"1MHz 9600", 1000000, 9600, 104, false},
		{"2MHz 9600", 2000000, 9600, 208, false},
		{"2MHz 115200", 2000000, 115200, 17, false},
		{"16MHz 300", 16000000, 300, 53333, true},
		{"1MHz 300", 1000000, 300, 3333, false},
		{"lowest", 1000000, 23, 43478, false},
		{"below lowest", 1000000, 22, 0, true},
		{"equal to tick rate", 1000000, 1000000, 1, false},
		{"above tick rate", 1000000, 1000001, 0, true},
		{"zero", 1000000, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BitTicks(tt.tickRate, tt.baud)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidBaudRate)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
