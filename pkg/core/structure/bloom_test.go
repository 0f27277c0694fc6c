package structure

import (
	"fmt"
	"testing"
)

func TestBloomNoFalseNegatives(t *testing.T) {
	bf := NewBloomFilter(1000, 0.01)
	for i := 0; i < 1000; i++ {
		bf.Add(fmt.Sprintf("Title %d", i))
	}
	for i := 0; i < 1000; i++ {
		if !bf.MayContain(fmt.Sprintf("Title %d", i)) {
			t.Fatalf("added key %d reported absent", i)
		}
	}
	if bf.Len() != 1000 {
		t.Errorf("len: got %d", bf.Len())
	}
}

func TestBloomFalsePositiveRate(t *testing.T) {
	bf := NewBloomFilter(1000, 0.01)
	for i := 0; i < 1000; i++ {
		bf.Add(fmt.Sprintf("present-%d", i))
	}
	fp := 0
	for i := 0; i < 10000; i++ {
		if bf.MayContain(fmt.Sprintf("absent-%d", i)) {
			fp++
		}
	}
	// 1% target, allow generous slack
	if fp > 500 {
		t.Errorf("false positives: %d / 10000", fp)
	}
}

func TestBloomDegenerateSizing(t *testing.T) {
	bf := NewBloomFilter(0, 2)
	bf.Add("Dune")
	if !bf.MayContain("Dune") {
		t.Error("added key reported absent")
	}
}
