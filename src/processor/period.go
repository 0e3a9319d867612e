// period.go
package processor

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"PandemicInsight/src/utils"
)

// 千分位分组的显示格式(450000 -> "450,000")
var printer = message.NewPrinter(language.English)

// CovidStats 持有富化后的观测表, 提供线程安全的查询访问
type CovidStats struct {
	df         dataframe.DataFrame
	latestDate string // 表中最新的观测日期(ISO格式)
	mu         sync.RWMutex
}

func NewCovidStats(df dataframe.DataFrame, latestDate string) *CovidStats {
	return &CovidStats{df: df, latestDate: latestDate}
}

func (s *CovidStats) SetDF(df dataframe.DataFrame, latestDate string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.df = df
	s.latestDate = latestDate
}

func (s *CovidStats) DF() dataframe.DataFrame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.df
}

func (s *CovidStats) LatestDate() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestDate
}

// PeriodQuery 月度查询参数
type PeriodQuery struct {
	Location string // 地区名, 忽略大小写和首尾空白
	Year     int
	Month    int // 1-12
}

// PeriodSummary 月度汇总结果
// 累计型指标(确诊/死亡/完全接种)取月内最大值, 近似期末值;
// 占用型指标(ICU/住院)取算术平均, 近似期间典型负荷。
// 两种聚合口径的混用是有意设计, 不可更改。
type PeriodSummary struct {
	Location              string     `json:"location"`
	Year                  int        `json:"year"`
	Month                 time.Month `json:"month"`
	TotalCases            float64    `json:"total_cases"`
	TotalDeaths           float64    `json:"total_deaths"`
	PeopleFullyVaccinated float64    `json:"people_fully_vaccinated"`
	ICUPatients           float64    `json:"icu_patients"`
	HospPatients          float64    `json:"hosp_patients"`
	MatchedDays           int        `json:"matched_days"`
}

// NoData 结构化的"无数据"结果
// 查询不命中不是错误; 可能是地区名拼写不符, 也可能该月确无上报,
// 两种原因这里只报告不区分
type NoData struct {
	Location  string `json:"location"`
	MonthName string `json:"month_name"`
	Year      int    `json:"year"`
}

func (nd *NoData) String() string {
	return fmt.Sprintf("%s 在 %s %d 无数据(地区名不符或该月无上报)",
		nd.Location, nd.MonthName, nd.Year)
}

// QueryPeriod 汇总指定地区在某自然月内的观测
// 返回值三选一: 汇总结果 / 无数据结果 / 参数错误
func (s *CovidStats) QueryPeriod(q PeriodQuery) (*PeriodSummary, *NoData, error) {
	location := strings.TrimSpace(q.Location)
	if location == "" {
		return nil, nil, fmt.Errorf("地区名不能为空")
	}
	if q.Month < 1 || q.Month > 12 {
		return nil, nil, fmt.Errorf("月份超出范围(1-12): %d", q.Month)
	}
	if q.Year < 1900 || q.Year > 2100 {
		return nil, nil, fmt.Errorf("年份超出范围(1900-2100): %d", q.Year)
	}

	// 日期列为ISO格式字符串, 按 "YYYY-MM-" 前缀即可命中当月
	prefix := fmt.Sprintf("%04d-%02d-", q.Year, q.Month)

	matched := s.DF().Filter(
		dataframe.F{
			Colname:    ColLocation,
			Comparator: series.CompFunc,
			Comparando: func(el series.Element) bool {
				return strings.EqualFold(strings.TrimSpace(el.String()), location)
			},
		},
	).Filter(
		dataframe.F{
			Colname:    ColDate,
			Comparator: series.CompFunc,
			Comparando: func(el series.Element) bool {
				return strings.HasPrefix(el.String(), prefix)
			},
		},
	)

	if matched.Nrow() == 0 {
		return nil, &NoData{
			Location:  location,
			MonthName: time.Month(q.Month).String(),
			Year:      q.Year,
		}, nil
	}

	summary := &PeriodSummary{
		Location:              location,
		Year:                  q.Year,
		Month:                 time.Month(q.Month),
		TotalCases:            utils.MaxNA(matched.Col(ColTotalCases).Float()),
		TotalDeaths:           utils.MaxNA(matched.Col(ColTotalDeaths).Float()),
		PeopleFullyVaccinated: utils.MaxNA(matched.Col(ColPeopleFullyVaccinated).Float()),
		ICUPatients:           utils.MeanNA(matched.Col(ColICUPatients).Float()),
		HospPatients:          utils.MeanNA(matched.Col(ColHospPatients).Float()),
		MatchedDays:           matched.Nrow(),
	}
	return summary, nil, nil
}

// Format 生成月度汇总的展示文本
// 计数类指标千分位分组, 占用均值保留一位小数
func (s *PeriodSummary) Format() string {
	return fmt.Sprintf("%s %d-%02d：累计确诊%s例，累计死亡%s例，完全接种%s人；ICU占用日均%s，住院占用日均%s。",
		s.Location, s.Year, int(s.Month),
		formatCount(s.TotalCases),
		formatCount(s.TotalDeaths),
		formatCount(s.PeopleFullyVaccinated),
		formatMean(s.ICUPatients),
		formatMean(s.HospPatients),
	)
}

func formatCount(v float64) string {
	if math.IsNaN(v) {
		return "无数据"
	}
	return printer.Sprintf("%d", int64(math.Round(v)))
}

func formatMean(v float64) string {
	if math.IsNaN(v) {
		return "无数据"
	}
	return fmt.Sprintf("%.1f", v)
}
