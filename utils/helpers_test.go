package utils

import (
	"strings"
	"testing"
)

func Test_RoundUpPow(t *testing.T) {
	cases := []struct{ in, out uint64 }{{1, 1}, {2, 2}, {3, 4}, {5, 8}, {8, 8}, {9, 16}, {1000, 1024}}
	for _, c := range cases {
		if got := RoundUpPow(c.in); got != c.out {
			t.Error("RoundUpPow", c.in, "got", got, "want", c.out)
		}
	}
	if RoundUpPow(0) != 0 {
		t.Error("RoundUpPow(0)", RoundUpPow(0))
	}
}

func Test_Helpers(t *testing.T) {
	if Max(3, 7) != 7 || Min(3, 7) != 3 || Max(0.5, -1) != 0.5 {
		t.Error("Max/Min mismatch")
	}
	keys := SortedKeys(map[uint64]string{5: "a", 1: "b", 3: "c"})
	if len(keys) != 3 || keys[0] != 1 || keys[2] != 5 {
		t.Error("SortedKeys", keys)
	}
	if !FloatEquals(1.0, 1.0005) || FloatEquals(1.0, 1.01) || !FloatEquals(1.0, 1.01, 0.1) {
		t.Error("FloatEquals variance")
	}
}

func Test_Bitmap(t *testing.T) {
	bm := NewBitmap(70)
	if len(bm) != 2 {
		t.Fatal("bitmap size", len(bm))
	}
	bm.Set(3)
	bm.Set(69)
	bm.Set(200)
	if !bm.Get(3) || !bm.Get(69) || !bm.Get(200) || bm.Get(4) {
		t.Error("bitmap get mismatch")
	}
	bm.Clear(69)
	if bm.Get(69) || bm.Count() != 2 {
		t.Error("bitmap clear mismatch", bm.Count())
	}
	all := NewBitmapSet(10)
	if all.Count() != 10 || all.Get(10) {
		t.Error("set bitmap mismatch", all.Count())
	}
	all.Zeroes()
	if all.Count() != 0 {
		t.Error("zeroes left bits behind")
	}
}

func Test_EachFieldLine(t *testing.T) {
	input := "# header\n1 2\n\n  3 4 0.5\n#5 6\n"
	var got [][]string
	var lines []int
	err := EachFieldLine(strings.NewReader(input), func(lineNo int, fields []string) error {
		got = append(got, fields)
		lines = append(lines, lineNo)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || len(got[1]) != 3 || got[1][2] != "0.5" {
		t.Fatal("fields mismatch", got)
	}
	if lines[0] != 2 || lines[1] != 4 {
		t.Error("line numbers mismatch", lines)
	}
}
