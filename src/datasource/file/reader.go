// reader.go
package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/tealeg/xlsx"

	"PandemicInsight/src/config"
	"PandemicInsight/src/processor"
	"PandemicInsight/src/utils"
)

// ensureDir 确保目录存在
func ensureDir(dirPath string) error {
	if info, err := os.Stat(dirPath); err == nil {
		if info.IsDir() {
			return nil
		}
		return fmt.Errorf("%s exists but is not a directory", dirPath)
	}
	return os.MkdirAll(dirPath, 0755)
}

// GetDataPath 确定数据文件的位置
// 先在可执行文件所在目录下找, 找不到再回退到当前工作目录
func GetDataPath(dataDir, fileName string) (string, error) {
	if exePath, err := os.Executable(); err == nil {
		path := filepath.Join(filepath.Dir(exePath), dataDir, fileName)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	path := filepath.Join(dataDir, fileName)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("数据文件 %s 不存在于预期位置", fileName)
}

// ValidateColumns 检查必需列是否齐全
// 外部数据的列前置条件在装载边界检查, 核心计算默认列已齐全
func ValidateColumns(df dataframe.DataFrame, dcfg *config.DataConfig) error {
	var missing []string
	for _, name := range dcfg.RequiredColumns() {
		if !utils.HasColumn(df, dcfg.GetColumn(name)) {
			missing = append(missing, dcfg.GetColumn(name))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("数据文件缺少必需列: %s", strings.Join(missing, ", "))
	}
	return nil
}

func loadOptions(dcfg *config.DataConfig) []dataframe.LoadOption {
	// 按实际列名指定类型, 数值列统一Float, 空值解析为NA
	types := make(map[string]series.Type)
	for name, typ := range processor.ColumnTypes() {
		types[dcfg.GetColumn(name)] = typ
	}
	return []dataframe.LoadOption{
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.WithTypes(types),
		dataframe.NaNValues([]string{"", "NA", "NaN"}),
	}
}

// ReadCSVToDataFrame 读取CSV数据文件
func ReadCSVToDataFrame(filePath string, dcfg *config.DataConfig) (dataframe.DataFrame, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("打开数据文件失败: %w", err)
	}
	defer f.Close()

	df := dataframe.ReadCSV(f, append(loadOptions(dcfg), dataframe.HasHeader(true))...)
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("解析CSV失败: %w", df.Err)
	}
	return df, nil
}

// ReadXLSXToDataFrame 读取xlsx格式的数据文件
func ReadXLSXToDataFrame(filePath, sheetName string, dcfg *config.DataConfig) (dataframe.DataFrame, error) {
	xlFile, err := xlsx.OpenFile(filePath)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("打开xlsx文件失败: %w", err)
	}
	if len(xlFile.Sheets) == 0 {
		return dataframe.DataFrame{}, fmt.Errorf("excel文件中没有工作表")
	}

	sheet, ok := xlFile.Sheet[sheetName]
	if !ok {
		// 未指定或找不到时落到第一个工作表
		sheet = xlFile.Sheets[0]
	}

	return convertSheetToDataFrame(sheet, dcfg)
}

// convertSheetToDataFrame 将xlsx.Sheet转换为dataframe.DataFrame
// 第一行为标题行
func convertSheetToDataFrame(sheet *xlsx.Sheet, dcfg *config.DataConfig) (dataframe.DataFrame, error) {
	if len(sheet.Rows) < 2 {
		return dataframe.DataFrame{}, fmt.Errorf("工作表中没有数据行")
	}

	var headers []string
	for _, cell := range sheet.Rows[0].Cells {
		headers = append(headers, cell.Value)
	}

	records := [][]string{headers}
	for _, row := range sheet.Rows[1:] {
		record := make([]string, len(headers))
		for i, cell := range row.Cells {
			if i < len(headers) {
				record[i] = cell.Value
			}
		}
		records = append(records, record)
	}

	df := dataframe.LoadRecords(records, loadOptions(dcfg)...)
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("转换为dataframe失败: %w", df.Err)
	}
	return df, nil
}

// normalizeColumns 把数据文件中的实际列名重命名为规范列名
func normalizeColumns(df dataframe.DataFrame, dcfg *config.DataConfig) dataframe.DataFrame {
	for name := range processor.ColumnTypes() {
		actual := dcfg.GetColumn(name)
		if actual != name && utils.HasColumn(df, actual) {
			df = df.Rename(name, actual)
		}
	}
	return df
}

// Clean 去除continent为空的行(World/大洲等聚合行)
func Clean(df dataframe.DataFrame) dataframe.DataFrame {
	return df.Filter(
		dataframe.F{
			Colname:    processor.ColContinent,
			Comparator: series.CompFunc,
			Comparando: func(el series.Element) bool {
				return !el.IsNA() && el.String() != ""
			},
		},
	)
}

// LoadProcessed 装载并处理数据文件, 返回富化后的观测表和最新观测日期
// 处理流程: 读取 -> 列校验 -> 规范化列名 -> 选列 -> 清洗 -> 派生指标
func LoadProcessed(filePath, sheetName string, dcfg *config.DataConfig) (dataframe.DataFrame, string, error) {
	var (
		df  dataframe.DataFrame
		err error
	)
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".xlsx":
		df, err = ReadXLSXToDataFrame(filePath, sheetName, dcfg)
	default:
		df, err = ReadCSVToDataFrame(filePath, dcfg)
	}
	if err != nil {
		return dataframe.DataFrame{}, "", err
	}

	if err := ValidateColumns(df, dcfg); err != nil {
		return dataframe.DataFrame{}, "", err
	}

	df = normalizeColumns(df, dcfg)
	df = df.Select(dcfg.RequiredColumns())
	if df.Err != nil {
		return dataframe.DataFrame{}, "", fmt.Errorf("选择数据列失败: %w", df.Err)
	}

	df = Clean(df)
	if df.Nrow() == 0 {
		return dataframe.DataFrame{}, "", fmt.Errorf("清洗后数据集为空")
	}

	df = processor.DeriveMetrics(df)

	// ISO日期按字典序取最大即为最新观测日期
	latest := ""
	for _, d := range df.Col(processor.ColDate).Records() {
		if d > latest {
			latest = d
		}
	}

	return df, latest, nil
}

// Cache 进程级数据缓存, 以(路径, 修改时间)为键
// 源文件变化后由文件监控触发Invalidate
type Cache struct {
	mu      sync.Mutex
	path    string
	modTime time.Time
	df      dataframe.DataFrame
	latest  string
	valid   bool
}

// Load 命中缓存时直接返回副本, 否则重新装载
func (c *Cache) Load(filePath, sheetName string, dcfg *config.DataConfig) (dataframe.DataFrame, string, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return dataframe.DataFrame{}, "", fmt.Errorf("读取文件信息失败: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.valid && c.path == filePath && c.modTime.Equal(info.ModTime()) {
		// 返回副本, 防止调用方修改缓存数据
		return c.df.Copy(), c.latest, nil
	}

	df, latest, err := LoadProcessed(filePath, sheetName, dcfg)
	if err != nil {
		return dataframe.DataFrame{}, "", err
	}

	c.path = filePath
	c.modTime = info.ModTime()
	c.df = df
	c.latest = latest
	c.valid = true

	return df.Copy(), latest, nil
}

// Invalidate 使缓存失效, 下次Load时重新装载
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.valid = false
}
