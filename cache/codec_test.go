package cache

import (
	"bytes"
	"reflect"
	"testing"
)

type codecSample struct {
	ID     string         `msgpack:"id"`
	Count  int            `msgpack:"count"`
	Scores []float64      `msgpack:"scores"`
	Labels map[string]int `msgpack:"labels"`
}

func TestMsgpackCodec_RoundTrip(t *testing.T) {
	codec := NewMsgpackCodec()

	tests := []struct {
		name string
		in   any
		out  func() any
	}{
		{
			name: "string",
			in:   "hello",
			out:  func() any { return new(string) },
		},
		{
			name: "int",
			in:   42,
			out:  func() any { return new(int) },
		},
		{
			name: "float",
			in:   3.14,
			out:  func() any { return new(float64) },
		},
		{
			name: "slice",
			in:   []int{1, 2, 3},
			out:  func() any { return new([]int) },
		},
		{
			name: "nested map",
			in:   map[string][]string{"a": {"x", "y"}, "b": {"z"}},
			out:  func() any { return new(map[string][]string) },
		},
		{
			name: "struct",
			in: codecSample{
				ID:     "s1",
				Count:  7,
				Scores: []float64{0.5, 0.25},
				Labels: map[string]int{"hot": 1, "cold": 0},
			},
			out: func() any { return new(codecSample) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := codec.Marshal(tt.in)
			if err != nil {
				t.Fatalf("Marshal() error: %v", err)
			}
			dest := tt.out()
			if err := codec.Unmarshal(data, dest); err != nil {
				t.Fatalf("Unmarshal() error: %v", err)
			}
			got := reflect.ValueOf(dest).Elem().Interface()
			if !reflect.DeepEqual(got, tt.in) {
				t.Errorf("round trip mismatch: got %#v, want %#v", got, tt.in)
			}
		})
	}
}

func TestMsgpackCodec_DeterministicMaps(t *testing.T) {
	codec := NewMsgpackCodec()

	// Two map[string]any values with identical content but different
	// insertion histories must encode identically. That is the codec's
	// ordering guarantee; other map shapes are normalized to this form
	// before fingerprinting.
	a := map[string]any{}
	for i := 0; i < 26; i++ {
		a[string(rune('a'+i))] = i
	}
	b := map[string]any{}
	for i := 25; i >= 0; i-- {
		b[string(rune('a'+i))] = i
	}

	for i := 0; i < 20; i++ {
		dataA, err := codec.Marshal(a)
		if err != nil {
			t.Fatalf("Marshal(a) error: %v", err)
		}
		dataB, err := codec.Marshal(b)
		if err != nil {
			t.Fatalf("Marshal(b) error: %v", err)
		}
		if !bytes.Equal(dataA, dataB) {
			t.Fatal("equal maps encoded to different bytes")
		}
	}
}

func TestMsgpackCodec_RejectsFunctions(t *testing.T) {
	codec := NewMsgpackCodec()
	if _, err := codec.Marshal(func() {}); err == nil {
		t.Error("expected an error marshaling a function value")
	}
}
