// metrics.go
package processor

import (
	"math"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// 观测表的规范列名
const (
	ColIsoCode               = "iso_code"
	ColContinent             = "continent"
	ColLocation              = "location"
	ColDate                  = "date"
	ColTotalCases            = "total_cases"
	ColNewCases              = "new_cases"
	ColTotalDeaths           = "total_deaths"
	ColNewDeaths             = "new_deaths"
	ColICUPatients           = "icu_patients"
	ColHospPatients          = "hosp_patients"
	ColWeeklyICUAdmissions   = "weekly_icu_admissions"
	ColPopulation            = "population"
	ColPeopleVaccinated      = "people_vaccinated"
	ColPeopleFullyVaccinated = "people_fully_vaccinated"
)

// 派生指标列名
const (
	ColDeathRate          = "death_rate"
	ColPctVaccinated      = "pct_vaccinated"
	ColPctFullyVaccinated = "pct_fully_vaccinated"
	ColHospPer100k        = "hosp_per_100k"
	ColICUPer100k         = "icu_per_100k"
)

// DeriveMetrics 在观测表上追加派生指标列, 原始测量列不被修改
// 规则:
//   - death_rate = total_deaths / total_cases, 仅当 total_cases > 0, 否则为NA
//     (无病例时不得报出0%的病死率)
//   - pct_vaccinated / pct_fully_vaccinated = 接种人数 / population * 100
//   - hosp_per_100k / icu_per_100k = 占用人数 / (population / 100000)
//   - population 缺失或为0时, 四个人口相关指标均为NA, 仅影响该行
//   - icu_patients / hosp_patients 缺失按0处理(缺报口径为"已知为0")
//
// 缺失值不视为错误, 以NA传播; 重复派生结果不变
func DeriveMetrics(df dataframe.DataFrame) dataframe.DataFrame {
	n := df.Nrow()

	cases := df.Col(ColTotalCases).Float()
	deaths := df.Col(ColTotalDeaths).Float()
	population := df.Col(ColPopulation).Float()
	vaccinated := df.Col(ColPeopleVaccinated).Float()
	fullyVaccinated := df.Col(ColPeopleFullyVaccinated).Float()

	// 缺失的ICU/住院占用先补0, 再参与per-100k计算
	// 病例/死亡/接种的缺失保持NA, 两种口径的不一致是数据源有意为之
	hosp := fillZero(df.Col(ColHospPatients).Float())
	icu := fillZero(df.Col(ColICUPatients).Float())

	deathRate := make([]float64, n)
	pctVaccinated := make([]float64, n)
	pctFullyVaccinated := make([]float64, n)
	hospPer100k := make([]float64, n)
	icuPer100k := make([]float64, n)

	for i := 0; i < n; i++ {
		// NaN参与比较时结果为false, 缺失病例数自然落入NA分支
		if cases[i] > 0 {
			deathRate[i] = deaths[i] / cases[i]
		} else {
			deathRate[i] = math.NaN()
		}

		if population[i] > 0 {
			pctVaccinated[i] = vaccinated[i] / population[i] * 100
			pctFullyVaccinated[i] = fullyVaccinated[i] / population[i] * 100
			hospPer100k[i] = hosp[i] / (population[i] / 100000)
			icuPer100k[i] = icu[i] / (population[i] / 100000)
		} else {
			pctVaccinated[i] = math.NaN()
			pctFullyVaccinated[i] = math.NaN()
			hospPer100k[i] = math.NaN()
			icuPer100k[i] = math.NaN()
		}
	}

	// Mutate对同名列做整列替换, 重复派生因此是幂等的
	df = df.Mutate(series.New(hosp, series.Float, ColHospPatients))
	df = df.Mutate(series.New(icu, series.Float, ColICUPatients))
	df = df.Mutate(series.New(deathRate, series.Float, ColDeathRate))
	df = df.Mutate(series.New(pctVaccinated, series.Float, ColPctVaccinated))
	df = df.Mutate(series.New(pctFullyVaccinated, series.Float, ColPctFullyVaccinated))
	df = df.Mutate(series.New(hospPer100k, series.Float, ColHospPer100k))
	df = df.Mutate(series.New(icuPer100k, series.Float, ColICUPer100k))

	return df
}

func fillZero(vals []float64) []float64 {
	out := make([]float64, len(vals))
	for i, v := range vals {
		if math.IsNaN(v) {
			out[i] = 0
		} else {
			out[i] = v
		}
	}
	return out
}
