// latest.go
package processor

import (
	"math"
	"sort"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// ColumnTypes 观测表各列的解析类型
// 日期按ISO字符串保存, 比较与取最大值均可直接按字典序
func ColumnTypes() map[string]series.Type {
	return map[string]series.Type{
		ColIsoCode:               series.String,
		ColContinent:             series.String,
		ColLocation:              series.String,
		ColDate:                  series.String,
		ColTotalCases:            series.Float,
		ColNewCases:              series.Float,
		ColTotalDeaths:           series.Float,
		ColNewDeaths:             series.Float,
		ColICUPatients:           series.Float,
		ColHospPatients:          series.Float,
		ColWeeklyICUAdmissions:   series.Float,
		ColPopulation:            series.Float,
		ColPeopleVaccinated:      series.Float,
		ColPeopleFullyVaccinated: series.Float,
	}
}

// enrichedColumnTypes 在规范列之外补上派生指标列的类型
// 富化后的表重新装载时派生列同样按Float解析
func enrichedColumnTypes() map[string]series.Type {
	types := ColumnTypes()
	for _, col := range []string{
		ColDeathRate, ColPctVaccinated, ColPctFullyVaccinated,
		ColHospPer100k, ColICUPer100k,
	} {
		types[col] = series.Float
	}
	return types
}

// Locations 返回表中出现过的地区名, 保持首次出现的顺序
func (s *CovidStats) Locations() []string {
	records := s.DF().Col(ColLocation).Records()
	seen := make(map[string]bool, len(records))
	var locations []string
	for _, loc := range records {
		if !seen[loc] {
			seen[loc] = true
			locations = append(locations, loc)
		}
	}
	return locations
}

// LatestPerLocation 取每个地区的最新一行观测, 按累计确诊降序排列
func LatestPerLocation(df dataframe.DataFrame) dataframe.DataFrame {
	header := df.Names()
	dateIdx := indexOf(header, ColDate)

	groups := df.GroupBy(ColLocation).GetGroups()

	var rows [][]string
	for _, group := range groups {
		records := group.Records()
		if len(records) < 2 {
			continue
		}
		// 找出该地区日期最大的一行
		best := 1
		for i := 2; i < len(records); i++ {
			if records[i][dateIdx] > records[best][dateIdx] {
				best = i
			}
		}
		rows = append(rows, records[best])
	}

	out := dataframe.LoadRecords(
		append([][]string{header}, rows...),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.WithTypes(enrichedColumnTypes()),
	)
	if out.Err != nil {
		return out
	}
	return out.Arrange(dataframe.RevSort(ColTotalCases))
}

// TrendPoint 全球每日汇总(趋势图背后的数据, 绘图本身不在本仓库范围内)
type TrendPoint struct {
	Date        string  `json:"date"`
	TotalCases  float64 `json:"total_cases"`
	TotalDeaths float64 `json:"total_deaths"`
}

// GlobalTrend 按日期汇总所有地区的累计确诊与死亡, 缺失值不计入求和
func GlobalTrend(df dataframe.DataFrame) []TrendPoint {
	dates := df.Col(ColDate).Records()
	cases := df.Col(ColTotalCases).Float()
	deaths := df.Col(ColTotalDeaths).Float()

	byDate := make(map[string]*TrendPoint)
	for i, d := range dates {
		p, ok := byDate[d]
		if !ok {
			p = &TrendPoint{Date: d}
			byDate[d] = p
		}
		if !math.IsNaN(cases[i]) {
			p.TotalCases += cases[i]
		}
		if !math.IsNaN(deaths[i]) {
			p.TotalDeaths += deaths[i]
		}
	}

	points := make([]TrendPoint, 0, len(byDate))
	for _, p := range byDate {
		points = append(points, *p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })
	return points
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
