package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemJSONUsesStorageFieldNames(t *testing.T) {
	b, err := json.Marshal(Item{ID: 1, Name: "Buy milk", Kind: KindTask})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"name":"Buy milk","state":false,"type":"task"}`, string(b))
}

func TestParseRef(t *testing.T) {
	tests := []struct {
		in   string
		want Ref
		err  bool
	}{
		{in: "3", want: Ref{ID: 3}},
		{in: "task:3", want: Ref{Kind: KindTask, ID: 3}},
		{in: "e:5", want: Ref{Kind: KindEvent, ID: 5}},
		{in: "EVENT:7", want: Ref{Kind: KindEvent, ID: 7}},
		{in: "note:1", err: true},
		{in: "x", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRef(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilterCycleAndParse(t *testing.T) {
	assert.Equal(t, FilterCompleted, FilterAll.Next())
	assert.Equal(t, FilterPending, FilterCompleted.Next())
	assert.Equal(t, FilterAll, FilterPending.Next())

	for _, f := range Filters {
		got, err := ParseFilter(f.String())
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}
	_, err := ParseFilter("someday")
	assert.Error(t, err)
}

func TestParsePriority(t *testing.T) {
	p, err := ParsePriority("Alta")
	require.NoError(t, err)
	assert.Equal(t, "High", p.Label())

	p, err = ParsePriority("")
	require.NoError(t, err)
	assert.Equal(t, PriorityMedium, p)

	_, err = ParsePriority("urgent")
	assert.Error(t, err)
}
