package query

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pitabwire/formbase/model"
)

func TestResultsAccessorsOutOfRange(t *testing.T) {
	r := &Results{Columns: []string{"a"}, rows: [][]model.Value{{model.Int(1)}}}

	assert.Equal(t, int64(1), mustInt(t, r.Field(0, 0)))
	assert.True(t, r.Field(1, 0).IsNull())
	assert.True(t, r.Field(0, 5).IsNull())
	assert.True(t, r.Field(-1, 0).IsNull())
	assert.True(t, r.FieldByName(0, "missing").IsNull())
}

func TestResultsNilReceiver(t *testing.T) {
	var r *Results
	assert.Zero(t, r.Len())
	assert.True(t, r.First().IsNull())
	assert.True(t, r.FieldByName(0, "a").IsNull())
	assert.Empty(t, r.Records())
	assert.NotNil(t, r.Records(), "records must serialize as [] not null")
}

func TestResultsRecords(t *testing.T) {
	r := &Results{
		Columns: []string{"id", "name", "qty"},
		rows: [][]model.Value{
			{model.Int(1), model.String("bolt"), model.Empty()},
		},
	}

	recs := r.Records()
	assert.Len(t, recs, 1)
	assert.Equal(t, int64(1), recs[0]["id"])
	assert.Equal(t, "bolt", recs[0]["name"])
	assert.Nil(t, recs[0]["qty"], "null fields render as JSON null")
}

func TestFromDriver(t *testing.T) {
	assert.True(t, fromDriver(nil).IsNull())
	assert.Equal(t, "7", fromDriver(int64(7)).String())
	assert.Equal(t, "x", fromDriver([]byte("x")).String())

	f, ok := fromDriver(3.5).AsFloat()
	assert.True(t, ok)
	assert.Equal(t, 3.5, f)
}

func mustInt(t *testing.T, v model.Value) int64 {
	t.Helper()
	i, ok := v.AsInt()
	if !ok {
		t.Fatalf("value %v is not an integer", v)
	}
	return i
}
