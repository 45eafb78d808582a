package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/roommatch/core"
)

func TestDefault(t *testing.T) {
	r := Default()
	assert.Equal(t, 117, r.Len())

	id, ok := r.ID("Non-smoker")
	require.True(t, ok)
	assert.Equal(t, 1, id)

	id, ok = r.ID("Vegetarian")
	require.True(t, ok)
	assert.Equal(t, 4, id)

	name, ok := r.Name(117)
	require.True(t, ok)
	assert.Equal(t, "Old Soul", name)

	_, ok = r.ID("Cat Person")
	assert.False(t, ok)
}

func TestIDs(t *testing.T) {
	r := Default()
	ids := r.IDs([]string{"Dog Lover", "Unknown", "Night Owl", "Dog Lover"})
	assert.Equal(t, []int{2, 7}, ids)
}

func TestNames(t *testing.T) {
	r := Default()
	names := r.Names(core.Vector{7: 0.6, 2: 0.8, 999: 1})
	assert.Equal(t, []string{"Dog Lover", "Night Owl"}, names)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool
		wantLen int
	}{
		{
			name:    "ok",
			data:    "traits:\n  - {id: 1, name: a}\n  - {id: 2, name: b}\n",
			wantLen: 2,
		},
		{name: "empty", data: "traits: []\n", wantErr: true},
		{name: "duplicate id", data: "traits:\n  - {id: 1, name: a}\n  - {id: 1, name: b}\n", wantErr: true},
		{name: "duplicate name", data: "traits:\n  - {id: 1, name: a}\n  - {id: 2, name: a}\n", wantErr: true},
		{name: "non positive id", data: "traits:\n  - {id: 0, name: a}\n", wantErr: true},
		{name: "malformed", data: "traits: {", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Parse([]byte(tt.data))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, core.IsInvalidInput(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLen, r.Len())
			assert.Equal(t, []Trait{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}}, r.All())
		})
	}
}

func TestLoadEmptyPathUsesDefault(t *testing.T) {
	r, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 117, r.Len())
}
