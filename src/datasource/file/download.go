// download.go
package file

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// OWID疫情数据的默认下载地址
const DefaultDataURL = "https://raw.githubusercontent.com/owid/covid-19-data/master/public/data/owid-covid-data.csv"

var downloadClient = &http.Client{Timeout: 10 * time.Minute}

// DownloadData 下载数据文件到数据目录
// 文件已存在且未强制时跳过下载
func DownloadData(url, dataDir, fileName string, force bool) (string, error) {
	if url == "" {
		url = DefaultDataURL
	}

	if err := ensureDir(dataDir); err != nil {
		return "", fmt.Errorf("创建数据目录失败: %w", err)
	}

	dataPath := filepath.Join(dataDir, fileName)
	if _, err := os.Stat(dataPath); err == nil && !force {
		return dataPath, nil
	}

	resp, err := downloadClient.Get(url)
	if err != nil {
		return "", fmt.Errorf("下载数据失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("下载数据失败, 状态码: %d", resp.StatusCode)
	}

	// 先写临时文件, 完成后替换, 避免半截文件触发重新装载
	tmp, err := os.CreateTemp(dataDir, fileName+".*")
	if err != nil {
		return "", fmt.Errorf("创建临时文件失败: %w", err)
	}

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("写入数据文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}

	if err := os.Rename(tmp.Name(), dataPath); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("替换数据文件失败: %w", err)
	}

	return dataPath, nil
}
