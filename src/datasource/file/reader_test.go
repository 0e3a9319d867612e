package file

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"PandemicInsight/src/config"
	"PandemicInsight/src/processor"
	"PandemicInsight/src/utils"
)

const testCSVHeader = "iso_code,continent,location,date,total_cases,new_cases,total_deaths,new_deaths,icu_patients,hosp_patients,weekly_icu_admissions,population,people_vaccinated,people_fully_vaccinated"

var testCSVRows = []string{
	"KEN,Africa,Kenya,2021-01-05,100,10,3,0,5,12,2,50000000,900000,400000",
	"KEN,Africa,Kenya,2021-01-15,150,50,5,2,7,15,3,50000000,950000,450000",
	"KEN,Africa,Kenya,2021-02-05,200,50,8,3,,,,50000000,1000000,500000",
	// continent为空的聚合行, 清洗时应被去除
	"OWID_WRL,,World,2021-01-15,90000000,500000,2000000,10000,,,,7800000000,,",
}

func testDataConfig() *config.DataConfig {
	return &config.DataConfig{
		Required: []string{
			"iso_code", "continent", "location", "date",
			"total_cases", "new_cases", "total_deaths", "new_deaths",
			"icu_patients", "hosp_patients", "weekly_icu_admissions",
			"population", "people_vaccinated", "people_fully_vaccinated",
		},
	}
}

func writeTestCSV(t *testing.T, rows []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "covid.csv")
	content := testCSVHeader + "\n" + strings.Join(rows, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("写测试CSV失败: %v", err)
	}
	return path
}

func TestLoadProcessed(t *testing.T) {
	path := writeTestCSV(t, testCSVRows)

	df, latest, err := LoadProcessed(path, "", testDataConfig())
	if err != nil {
		t.Fatalf("LoadProcessed error: %v", err)
	}

	// World聚合行被清洗掉
	if df.Nrow() != 3 {
		t.Errorf("Nrow = %d, want 3", df.Nrow())
	}
	for _, loc := range df.Col(processor.ColLocation).Records() {
		if loc == "World" {
			t.Error("清洗后仍包含World聚合行")
		}
	}

	if latest != "2021-02-05" {
		t.Errorf("最新观测日期 = %q, want 2021-02-05", latest)
	}

	// 派生指标列已追加
	for _, col := range []string{
		processor.ColDeathRate, processor.ColPctVaccinated,
		processor.ColPctFullyVaccinated, processor.ColHospPer100k,
		processor.ColICUPer100k,
	} {
		if !utils.HasColumn(df, col) {
			t.Errorf("缺少派生列 %s", col)
		}
	}

	// 缺失的ICU/住院补0
	icu := df.Col(processor.ColICUPatients).Float()
	if icu[2] != 0 {
		t.Errorf("缺失icu_patients装载后 = %v, want 0", icu[2])
	}
}

func TestLoadProcessedMissingColumn(t *testing.T) {
	// 缺少population列
	path := filepath.Join(t.TempDir(), "bad.csv")
	content := "iso_code,continent,location,date,total_cases\nKEN,Africa,Kenya,2021-01-05,100\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	_, _, err := LoadProcessed(path, "", testDataConfig())
	if err == nil {
		t.Fatal("缺少必需列应报错")
	}
	if !strings.Contains(err.Error(), "population") {
		t.Errorf("错误信息未指出缺失列: %v", err)
	}
}

func TestLoadProcessedColumnMapping(t *testing.T) {
	// 实际列名与规范列名不一致时按映射重命名
	path := filepath.Join(t.TempDir(), "mapped.csv")
	header := strings.Replace(testCSVHeader, "location", "country", 1)
	content := header + "\n" + testCSVRows[0] + "\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	dcfg := testDataConfig()
	dcfg.SetColumn("location", "country")

	df, _, err := LoadProcessed(path, "", dcfg)
	if err != nil {
		t.Fatalf("LoadProcessed error: %v", err)
	}
	if !utils.HasColumn(df, processor.ColLocation) {
		t.Error("映射列未重命名为规范列名")
	}
}

func TestCache(t *testing.T) {
	path := writeTestCSV(t, testCSVRows)
	dcfg := testDataConfig()

	var cache Cache
	df1, latest1, err := cache.Load(path, "", dcfg)
	if err != nil {
		t.Fatalf("首次Load error: %v", err)
	}

	// 文件未变时命中缓存
	df2, latest2, err := cache.Load(path, "", dcfg)
	if err != nil {
		t.Fatalf("二次Load error: %v", err)
	}
	if df1.Nrow() != df2.Nrow() || latest1 != latest2 {
		t.Errorf("缓存命中结果不一致: %d/%s vs %d/%s",
			df1.Nrow(), latest1, df2.Nrow(), latest2)
	}

	// Invalidate后重新装载, 能看到新增的行
	newRow := "KEN,Africa,Kenya,2021-03-01,260,60,11,3,6,14,2,50000000,1100000,600000"
	content := testCSVHeader + "\n" + strings.Join(append(testCSVRows, newRow), "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	cache.Invalidate()

	df3, latest3, err := cache.Load(path, "", dcfg)
	if err != nil {
		t.Fatalf("失效后Load error: %v", err)
	}
	if df3.Nrow() != 4 {
		t.Errorf("失效后Nrow = %d, want 4", df3.Nrow())
	}
	if latest3 != "2021-03-01" {
		t.Errorf("失效后最新日期 = %q, want 2021-03-01", latest3)
	}
}

func TestGetDataPath(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "covid.csv"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	path, err := GetDataPath(dir, "covid.csv")
	if err != nil {
		t.Fatalf("GetDataPath error: %v", err)
	}
	if path != filepath.Join(dir, "covid.csv") {
		t.Errorf("GetDataPath = %q", path)
	}

	if _, err := GetDataPath(dir, "missing.csv"); err == nil {
		t.Error("不存在的文件应报错")
	}
}
