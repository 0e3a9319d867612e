// report.go
package processor

import (
	"fmt"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"PandemicInsight/src/utils"
)

// MonthlyReport 逐地区生成指定月份的汇总
// 无数据的地区被跳过, 不构成错误
func (s *CovidStats) MonthlyReport(year, month int) ([]*PeriodSummary, error) {
	var summaries []*PeriodSummary
	for _, location := range s.Locations() {
		summary, _, err := s.QueryPeriod(PeriodQuery{Location: location, Year: year, Month: month})
		if err != nil {
			return nil, fmt.Errorf("地区 %s 查询失败: %w", location, err)
		}
		if summary != nil {
			summaries = append(summaries, summary)
		}
	}
	return summaries, nil
}

// ExportReport 将月度汇总导出为Excel报告
func ExportReport(summaries []*PeriodSummary, filePath string) error {
	if len(summaries) == 0 {
		return fmt.Errorf("没有可导出的汇总数据")
	}

	records := [][]string{{
		"location", "period",
		ColTotalCases, ColTotalDeaths, ColPeopleFullyVaccinated,
		ColICUPatients, ColHospPatients, "matched_days",
	}}
	for _, s := range summaries {
		records = append(records, []string{
			s.Location,
			fmt.Sprintf("%04d-%02d", s.Year, int(s.Month)),
			formatCount(s.TotalCases),
			formatCount(s.TotalDeaths),
			formatCount(s.PeopleFullyVaccinated),
			formatMean(s.ICUPatients),
			formatMean(s.HospPatients),
			fmt.Sprintf("%d", s.MatchedDays),
		})
	}

	df := dataframe.LoadRecords(records,
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return fmt.Errorf("构建报告表失败: %w", df.Err)
	}

	return utils.SaveToExcel(df, filePath)
}
