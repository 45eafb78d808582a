package conv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigGet(t *testing.T) {
	m := map[string]any{"dsn": "./data", "db": 3}

	assert.Equal(t, "./data", ConfigGet(m, "dsn", ""))
	assert.Equal(t, "fallback", ConfigGet(m, "addr", "fallback"))
	// 类型不符时返回默认值
	assert.Equal(t, "x", ConfigGet(m, "db", "x"))
	assert.Equal(t, 0, ConfigGet[int](nil, "db", 0))
}

func TestConfigGetInt64(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want int64
	}{
		{name: "int", in: 3, want: 3},
		{name: "int64", in: int64(4), want: 4},
		{name: "float64 from json", in: float64(5), want: 5},
		{name: "string", in: "6", want: -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConfigGetInt64(map[string]any{"db": tt.in}, "db", -1))
		})
	}
	assert.Equal(t, int64(-1), ConfigGetInt64(nil, "db", -1))
}
