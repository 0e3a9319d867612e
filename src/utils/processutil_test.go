package utils

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

func TestContains(t *testing.T) {
	if !Contains([]string{"a", "b"}, "b") {
		t.Error(`Contains([a b], b) = false, want true`)
	}
	if Contains([]string{"a", "b"}, "c") {
		t.Error(`Contains([a b], c) = true, want false`)
	}
	if !Contains([]int{1, 2, 3}, 2) {
		t.Error("Contains([1 2 3], 2) = false, want true")
	}
}

func TestHasColumn(t *testing.T) {
	df := dataframe.New(
		series.New([]string{"x"}, series.String, "location"),
		series.New([]float64{1}, series.Float, "total_cases"),
	)
	if !HasColumn(df, "location") {
		t.Error("HasColumn(location) = false, want true")
	}
	if HasColumn(df, "missing") {
		t.Error("HasColumn(missing) = true, want false")
	}
}

func TestMaxNA(t *testing.T) {
	nan := math.NaN()
	if got := MaxNA([]float64{100, 150, 200}); got != 200 {
		t.Errorf("MaxNA = %v, want 200", got)
	}
	if got := MaxNA([]float64{nan, 150, nan, 80}); got != 150 {
		t.Errorf("含NaN MaxNA = %v, want 150", got)
	}
	if got := MaxNA([]float64{nan, nan}); !math.IsNaN(got) {
		t.Errorf("全NaN MaxNA = %v, want NaN", got)
	}
	if got := MaxNA(nil); !math.IsNaN(got) {
		t.Errorf("空切片 MaxNA = %v, want NaN", got)
	}
	// 负值时不得把0当基准
	if got := MaxNA([]float64{-3, -7}); got != -3 {
		t.Errorf("负值 MaxNA = %v, want -3", got)
	}
}

func TestMeanNA(t *testing.T) {
	nan := math.NaN()
	if got := MeanNA([]float64{5, 7, 9}); got != 7 {
		t.Errorf("MeanNA = %v, want 7", got)
	}
	if got := MeanNA([]float64{nan, 4, 8}); got != 6 {
		t.Errorf("含NaN MeanNA = %v, want 6", got)
	}
	if got := MeanNA([]float64{nan}); !math.IsNaN(got) {
		t.Errorf("全NaN MeanNA = %v, want NaN", got)
	}
}

func TestSaveToExcel(t *testing.T) {
	df := dataframe.New(
		series.New([]string{"Kenya", "Ghana"}, series.String, "location"),
		series.New([]float64{200, 120}, series.Float, "total_cases"),
	)

	filePath := filepath.Join(t.TempDir(), "out.xlsx")
	if err := SaveToExcel(df, filePath); err != nil {
		t.Fatalf("SaveToExcel error: %v", err)
	}
	info, err := os.Stat(filePath)
	if err != nil {
		t.Fatalf("文件未生成: %v", err)
	}
	if info.Size() == 0 {
		t.Error("生成的Excel为空")
	}
}
