package schema

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccollicutt/logsniff/pkg/record"
)

func rec(kv ...any) *record.Record {
	r := record.New(len(kv) / 2)
	for i := 0; i+1 < len(kv); i += 2 {
		r.Set(kv[i].(string), kv[i+1])
	}
	return r
}

func TestInfer_Types(t *testing.T) {
	sample := []*record.Record{
		rec("id", "1", "ratio", "0.5", "ok", "yes", "at", "2024-01-15T10:30:00Z", "msg", "hello", "n", json.Number("3")),
		rec("id", "2", "ratio", "2", "ok", "OFF", "at", "2024-01-15T10:31:00Z", "msg", "42", "n", json.Number("4")),
		rec("id", "-7", "ratio", "1e3", "ok", "t", "at", "2024-01-15 10:32:00", "msg", "true", "n", int64(5)),
	}

	s := Infer(sample)
	want := map[string]Type{
		"id":    Integer,
		"ratio": Float,
		"ok":    Boolean,
		"at":    Timestamp,
		"msg":   String,
		"n":     Integer,
	}
	assert.Equal(t, want, s.Types())

	names := make([]string, 0, s.Len())
	for _, f := range s.Fields() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"id", "ratio", "ok", "at", "msg", "n"}, names)
}

func TestInfer_AbsentValues(t *testing.T) {
	sample := []*record.Record{
		rec("a", "1", "b", ""),
		rec("a", nil, "b", nil),
		rec("a", "3"),
		rec("c", "x"),
	}

	s := Infer(sample)

	typ, ok := s.Type("a")
	require.True(t, ok)
	assert.Equal(t, Integer, typ, "empty and nil values are ignored")

	typ, ok = s.Type("b")
	require.True(t, ok)
	assert.Equal(t, String, typ, "a field with no values is a string")

	typ, ok = s.Type("c")
	require.True(t, ok)
	assert.Equal(t, String, typ)
}

func TestInfer_NativeValues(t *testing.T) {
	sample := []*record.Record{
		rec("i", int64(1), "f", 1.5, "b", true, "mixed", int64(1)),
		rec("i", uint32(2), "f", float32(2), "b", false, "mixed", "one"),
	}

	s := Infer(sample)
	assert.Equal(t, Integer, s.Types()["i"])
	assert.Equal(t, Float, s.Types()["f"])
	assert.Equal(t, Boolean, s.Types()["b"])
	assert.Equal(t, String, s.Types()["mixed"])
}

func TestInfer_NumbersAreNotBooleans(t *testing.T) {
	s := Infer([]*record.Record{rec("x", "1"), rec("x", "true")})
	assert.Equal(t, String, s.Types()["x"])
}

func TestInfer_NaNIsNotFloat(t *testing.T) {
	s := Infer([]*record.Record{rec("x", "NaN"), rec("x", "1.5")})
	assert.Equal(t, String, s.Types()["x"])
}

func TestInfer_TimestampLayout(t *testing.T) {
	s := Infer([]*record.Record{
		rec("timestamp", "Jun 14 15:16:01"),
		rec("timestamp", "Jun 14 15:16:02"),
	})

	fields := s.Fields()
	require.Len(t, fields, 1)
	assert.Equal(t, Timestamp, fields[0].Type)
	assert.Equal(t, "Syslog (BSD)", fields[0].Layout)
}

func TestInfer_OrderIndependent(t *testing.T) {
	sample := []*record.Record{
		rec("a", "1", "b", "x", "c", "2024-01-15"),
		rec("a", "2.5", "b", "yes", "c", "2024-01-16"),
		rec("a", "3", "b", "no", "c", ""),
		rec("a", "", "b", "y", "c", "2024-01-17"),
		rec("a", "9", "d", "true"),
	}
	want := Infer(sample).Types()

	r := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		shuffled := make([]*record.Record, len(sample))
		copy(shuffled, sample)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		assert.Equal(t, want, Infer(shuffled).Types())
	}
	assert.Equal(t, Float, want["a"])
	assert.Equal(t, String, want["b"])
	assert.Equal(t, Timestamp, want["c"])
	assert.Equal(t, Boolean, want["d"])
}

func TestSchema_MarshalJSON(t *testing.T) {
	s := Infer([]*record.Record{rec("b", "1", "a", "x")})

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"b","type":"integer"},{"name":"a","type":"string"}]`, string(data))
}

func TestInfer_Empty(t *testing.T) {
	s := Infer(nil)
	assert.Equal(t, 0, s.Len())
	_, ok := s.Type("x")
	assert.False(t, ok)
}
