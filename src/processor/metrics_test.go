package processor

import (
	"math"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// testFrame 构造一个带缺失值的小观测表
// 行: Kenya正常 / Nocase无病例 / Nopop无人口 / Ghost无ICU和住院
func testFrame() dataframe.DataFrame {
	return loadTestRecords([][]string{
		{"iso_code", "continent", "location", "date", "total_cases", "new_cases", "total_deaths", "new_deaths", "icu_patients", "hosp_patients", "weekly_icu_admissions", "population", "people_vaccinated", "people_fully_vaccinated"},
		{"KEN", "Africa", "Kenya", "2021-01-10", "100", "10", "10", "1", "5", "20", "3", "50000000", "1000000", "500000"},
		{"NOC", "Europe", "Nocase", "2021-01-10", "0", "0", "0", "0", "1", "2", "0", "1000000", "100", "50"},
		{"NOP", "Asia", "Nopop", "2021-01-10", "500", "50", "25", "2", "4", "8", "1", "", "200", "100"},
		{"GHO", "Oceania", "Ghost", "2021-01-10", "300", "30", "15", "1", "", "", "", "100000", "5000", "2500"},
	})
}

func loadTestRecords(records [][]string) dataframe.DataFrame {
	return dataframe.LoadRecords(records,
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.WithTypes(ColumnTypes()),
		dataframe.NaNValues([]string{"", "NA", "NaN"}),
	)
}

func TestDeriveMetricsDeathRate(t *testing.T) {
	df := DeriveMetrics(testFrame())

	rate := df.Col(ColDeathRate)
	if got := rate.Elem(0).Float(); got != 0.1 {
		t.Errorf("Kenya death_rate = %v, want 0.1", got)
	}
	// 无病例时病死率必须为NA, 不得报0
	if !rate.Elem(1).IsNA() {
		t.Errorf("total_cases=0 的行 death_rate = %v, want NA", rate.Elem(1).Float())
	}
}

func TestDeriveMetricsMissingPopulation(t *testing.T) {
	df := DeriveMetrics(testFrame())

	// population缺失的行, 四个人口相关指标全部为NA
	for _, col := range []string{ColPctVaccinated, ColPctFullyVaccinated, ColHospPer100k, ColICUPer100k} {
		if !df.Col(col).Elem(2).IsNA() {
			t.Errorf("population缺失时 %s = %v, want NA", col, df.Col(col).Elem(2).Float())
		}
	}

	// 其他行不受影响
	if got := df.Col(ColPctVaccinated).Elem(0).Float(); got != 2.0 {
		t.Errorf("Kenya pct_vaccinated = %v, want 2.0", got)
	}
}

func TestDeriveMetricsZeroPopulation(t *testing.T) {
	records := testFrame().Records()
	// 把Kenya的population改为0
	popIdx := indexOf(records[0], ColPopulation)
	records[1][popIdx] = "0"
	df := DeriveMetrics(loadTestRecords(records))

	for _, col := range []string{ColPctVaccinated, ColPctFullyVaccinated, ColHospPer100k, ColICUPer100k} {
		if !df.Col(col).Elem(0).IsNA() {
			t.Errorf("population=0 时 %s = %v, want NA", col, df.Col(col).Elem(0).Float())
		}
	}
}

func TestDeriveMetricsFillZero(t *testing.T) {
	df := DeriveMetrics(testFrame())

	// 缺失的ICU/住院按"已知为0"处理
	if got := df.Col(ColICUPatients).Elem(3).Float(); got != 0 {
		t.Errorf("缺失icu_patients派生后 = %v, want 0", got)
	}
	if got := df.Col(ColHospPatients).Elem(3).Float(); got != 0 {
		t.Errorf("缺失hosp_patients派生后 = %v, want 0", got)
	}

	// 补0参与per-100k计算
	if got := df.Col(ColICUPer100k).Elem(3).Float(); got != 0 {
		t.Errorf("缺失icu时 icu_per_100k = %v, want 0", got)
	}

	// 病例/死亡/接种的缺失不补0
	records := testFrame().Records()
	deathIdx := indexOf(records[0], ColTotalDeaths)
	records[1][deathIdx] = ""
	df = DeriveMetrics(loadTestRecords(records))
	if !df.Col(ColTotalDeaths).Elem(0).IsNA() {
		t.Errorf("total_deaths缺失派生后 = %v, want NA", df.Col(ColTotalDeaths).Elem(0).Float())
	}
}

func TestDeriveMetricsPer100k(t *testing.T) {
	df := DeriveMetrics(testFrame())

	// Kenya: 20 / (50000000/100000) = 0.04
	if got := df.Col(ColHospPer100k).Elem(0).Float(); math.Abs(got-0.04) > 1e-12 {
		t.Errorf("Kenya hosp_per_100k = %v, want 0.04", got)
	}
	if got := df.Col(ColICUPer100k).Elem(0).Float(); math.Abs(got-0.01) > 1e-12 {
		t.Errorf("Kenya icu_per_100k = %v, want 0.01", got)
	}
}

func TestDeriveMetricsIdempotent(t *testing.T) {
	once := DeriveMetrics(testFrame())
	twice := DeriveMetrics(once.Copy())

	cols := []string{
		ColDeathRate, ColPctVaccinated, ColPctFullyVaccinated,
		ColHospPer100k, ColICUPer100k, ColICUPatients, ColHospPatients,
		ColTotalCases, ColTotalDeaths,
	}
	for _, col := range cols {
		a := once.Col(col).Float()
		b := twice.Col(col).Float()
		if len(a) != len(b) {
			t.Fatalf("列 %s 行数不一致: %d vs %d", col, len(a), len(b))
		}
		for i := range a {
			if math.IsNaN(a[i]) && math.IsNaN(b[i]) {
				continue
			}
			if a[i] != b[i] {
				t.Errorf("重复派生后 %s[%d] = %v, want %v", col, i, b[i], a[i])
			}
		}
	}
}

func TestDeriveMetricsKeepsSourceColumns(t *testing.T) {
	src := testFrame()
	df := DeriveMetrics(src.Copy())

	a := src.Col(ColTotalCases).Float()
	b := df.Col(ColTotalCases).Float()
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("派生修改了原始列 total_cases[%d]: %v -> %v", i, a[i], b[i])
		}
	}
}
