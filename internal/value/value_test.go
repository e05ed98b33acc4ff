package value

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_AllKinds(t *testing.T) {
	v, err := Parse([]byte(`{"s":"x","n":1.5,"i":3,"b":true,"z":null,"a":[1,"two"]}`))
	require.NoError(t, err)

	obj, ok := v.(Object)
	require.True(t, ok)
	assert.Equal(t, String("x"), obj["s"])
	assert.Equal(t, Number(1.5), obj["n"])
	assert.Equal(t, Number(3), obj["i"])
	assert.Equal(t, Bool(true), obj["b"])
	assert.Equal(t, Null{}, obj["z"])
	assert.Equal(t, Array{Number(1), String("two")}, obj["a"])
}

func TestParse_EmptyIsNull(t *testing.T) {
	v, err := Parse(nil)
	require.NoError(t, err)
	assert.True(t, IsNull(v))

	v, err = Parse([]byte("   "))
	require.NoError(t, err)
	assert.True(t, IsNull(v))
}

func TestParse_RejectsTrailingData(t *testing.T) {
	_, err := Parse([]byte(`{"a":1} {"b":2}`))
	assert.Error(t, err)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte(`{"a":`))
	assert.Error(t, err)
}

func TestFromAny_YAMLShapes(t *testing.T) {
	in := map[string]any{
		"count": 2,
		"ratio": float32(0.5),
		"tags":  []any{"a", int64(7)},
		"nested": map[any]any{
			"ok": true,
		},
	}
	v, err := FromAny(in)
	require.NoError(t, err)

	obj := v.(Object)
	assert.Equal(t, Number(2), obj["count"])
	assert.Equal(t, Number(0.5), obj["ratio"])
	assert.Equal(t, Array{String("a"), Number(7)}, obj["tags"])
	assert.Equal(t, Object{"ok": Bool(true)}, obj["nested"])
}

func TestFromAny_Rejects(t *testing.T) {
	_, err := FromAny(map[any]any{1: "x"})
	assert.Error(t, err, "non-string keys")

	_, err = FromAny(math.NaN())
	assert.Error(t, err)

	_, err = FromAny(struct{}{})
	assert.Error(t, err)
}

func TestToAny_RoundTrip(t *testing.T) {
	v := MustParse(`{"a":[1,true,null,"s"],"b":{"c":2.25}}`)
	back, err := FromAny(ToAny(v))
	require.NoError(t, err)
	assert.True(t, Equal(v, back))
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"nil and null", nil, Null{}, true},
		{"null and string", Null{}, String(""), false},
		{"numbers", Number(1), Number(1.0), true},
		{"number vs string", Number(1), String("1"), false},
		{"nfc strings", String("café"), String("café"), true},
		{"arrays differ in length", Array{Number(1)}, Array{Number(1), Number(2)}, false},
		{"objects", MustParse(`{"a":{"b":1}}`), MustParse(`{"a":{"b":1}}`), true},
		{"objects differ", MustParse(`{"a":1}`), MustParse(`{"b":1}`), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}

func TestObjectLookup(t *testing.T) {
	obj := MustParse(`{"a":{"b":{"c":"deep"}},"x":1}`).(Object)

	v, ok := obj.Lookup("a", "b", "c")
	require.True(t, ok)
	assert.Equal(t, String("deep"), v)

	_, ok = obj.Lookup("x", "y")
	assert.False(t, ok, "cannot descend into a number")

	_, ok = obj.Lookup("missing")
	assert.False(t, ok)

	self, ok := obj.Lookup()
	require.True(t, ok)
	assert.Equal(t, obj, self)
}

func TestMarshalCanonical(t *testing.T) {
	v := MustParse(`{"z":1,"a":[3,2.5,"<&>"],"m":{"y":null,"b":false}}`)

	data, err := MarshalCanonical(v)
	require.NoError(t, err)
	assert.Equal(t, `{"a":[3,2.5,"<&>"],"m":{"b":false,"y":null},"z":1}`, string(data))
}

func TestMarshalCanonical_NormalizesStrings(t *testing.T) {
	data, err := MarshalCanonical(String("café"))
	require.NoError(t, err)
	assert.Equal(t, "\"café\"", string(data))
}

func TestMarshalCanonical_LargeNumbers(t *testing.T) {
	data, err := MarshalCanonical(Number(1e21))
	require.NoError(t, err)
	assert.Equal(t, "1e+21", string(data))

	data, err = MarshalCanonical(Number(1234567))
	require.NoError(t, err)
	assert.Equal(t, "1234567", string(data))
}

func TestJSONInterop(t *testing.T) {
	type wrapper struct {
		Data Object `json:"data"`
	}
	in := wrapper{Data: Object{"k": Number(1)}}

	raw, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Equal(t, `{"data":{"k":1}}`, string(raw))

	var out wrapper
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.True(t, Equal(in.Data, out.Data))
}
