// data_handler.go
package email

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/tealeg/xlsx"

	"PandemicInsight/src/storage"
)

// DataFrameWrapper 封装DataFrame并提供线程安全访问
type DataFrameWrapper struct {
	df dataframe.DataFrame
	mu sync.RWMutex
}

// GetDF 获取当前DataFrame(线程安全)
func (d *DataFrameWrapper) GetDF() dataframe.DataFrame {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.df
}

// SetDF 更新当前DataFrame(线程安全)
func (d *DataFrameWrapper) SetDF(df dataframe.DataFrame) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.df = df
}

// ReadCSV 从CSV附件内容加载DataFrame
// 列的类型推断与校验留给装载边界, 这里只做原样读取
func (d *DataFrameWrapper) ReadCSV(data []byte) error {
	df := dataframe.ReadCSV(bytes.NewReader(data),
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return fmt.Errorf("解析CSV附件失败: %w", df.Err)
	}
	d.SetDF(df)
	return nil
}

// ReadXLSX 从xlsx附件内容加载DataFrame
func (d *DataFrameWrapper) ReadXLSX(data []byte, sheetName string) error {
	xlFile, err := xlsx.OpenBinary(data)
	if err != nil {
		return err
	}

	if len(xlFile.Sheets) == 0 {
		return fmt.Errorf("excel文件中没有工作表")
	}
	sheet, ok := xlFile.Sheet[sheetName]
	if !ok {
		sheet = xlFile.Sheets[0]
	}

	return d.convertSheetToDataFrame(sheet)
}

// convertSheetToDataFrame 将xlsx.Sheet转换为dataframe.DataFrame
// 第一行为标题行
func (d *DataFrameWrapper) convertSheetToDataFrame(sheet *xlsx.Sheet) error {
	if len(sheet.Rows) < 2 {
		return fmt.Errorf("工作表中没有数据行")
	}

	var headers []string
	for _, cell := range sheet.Rows[0].Cells {
		headers = append(headers, cell.Value)
	}

	columns := make([][]string, len(headers))
	for i := range columns {
		columns[i] = make([]string, 0, len(sheet.Rows)-1)
	}

	for _, row := range sheet.Rows[1:] {
		for i := range headers {
			value := ""
			if i < len(row.Cells) {
				value = row.Cells[i].Value
			}
			columns[i] = append(columns[i], value)
		}
	}

	seriesList := make([]series.Series, len(headers))
	for i, colName := range headers {
		seriesList[i] = series.New(columns[i], series.String, colName)
	}

	d.SetDF(dataframe.New(seriesList...))
	return nil
}

// DatasetAttachmentHandler 将主题匹配邮件中的数据附件保存到数据目录
// 保存后文件监控会触发重新装载
type DatasetAttachmentHandler struct {
	TargetSubject string           // 目标邮件主题关键词
	DataDir       string           // 附件保存目录
	data          DataFrameWrapper // 最近一次附件的预读数据
	processedUIDs map[uint32]bool  // 已处理邮件UID记录
	mu            sync.RWMutex
}

func NewDatasetAttachmentHandler(subject, dataDir string) *DatasetAttachmentHandler {
	return &DatasetAttachmentHandler{
		TargetSubject: subject,
		DataDir:       dataDir,
		processedUIDs: make(map[uint32]bool),
	}
}

// IsProcessed 检查邮件是否已处理过（线程安全）
func (h *DatasetAttachmentHandler) IsProcessed(uid uint32) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.processedUIDs[uid]
}

func (h *DatasetAttachmentHandler) markAsProcessed(uid uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.processedUIDs[uid] = true
}

// Handle 处理单个数据邮件, 保存其中的csv/xlsx附件
func (h *DatasetAttachmentHandler) Handle(email *Email, logger *storage.Logger) error {
	if email == nil || h.IsProcessed(email.UID) {
		return nil
	}

	if !strings.Contains(email.Subject, h.TargetSubject) {
		logger.Debug(fmt.Sprintf("跳过主题不匹配的邮件: %s", email.Subject))
		return nil
	}

	logger.Info(fmt.Sprintf("处理数据邮件: %s 发件人: %s 日期: %s",
		email.Subject, email.From, email.Date.Format("2006-01-02 15:04:05")))

	if err := os.MkdirAll(h.DataDir, 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}

	saved := false
	for _, attachment := range email.Attachments {
		if !isDatasetFile(attachment.Filename) {
			continue
		}

		filePath := filepath.Join(h.DataDir, attachment.Filename)
		if err := os.WriteFile(filePath, attachment.Content, 0644); err != nil {
			return fmt.Errorf("保存附件失败: %w", err)
		}
		logger.Info(fmt.Sprintf("数据附件已保存到: %s", filePath))

		// 预读附件内容, 便于在装载前掌握数据规模
		if err := h.loadAttachment(attachment); err != nil {
			logger.Warning(fmt.Sprintf("预读附件失败: %v", err))
		} else {
			logger.Info(fmt.Sprintf("附件 %s 预读完成: %d行", attachment.Filename, h.data.GetDF().Nrow()))
		}
		saved = true
	}

	if saved {
		h.markAsProcessed(email.UID)
	}

	return nil
}

// loadAttachment 按扩展名把附件内容读入预读包装器
func (h *DatasetAttachmentHandler) loadAttachment(attachment *Attachment) error {
	switch strings.ToLower(filepath.Ext(attachment.Filename)) {
	case ".xlsx":
		return h.data.ReadXLSX(attachment.Content, "")
	default:
		return h.data.ReadCSV(attachment.Content)
	}
}

// Data 返回最近一次附件的预读数据
func (h *DatasetAttachmentHandler) Data() *DataFrameWrapper {
	return &h.data
}

func isDatasetFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".xlsx":
		return true
	}
	return false
}
