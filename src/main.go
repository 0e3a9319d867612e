package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/robfig/cron"

	"PandemicInsight/src/config"
	"PandemicInsight/src/datapush"
	"PandemicInsight/src/datasource/email"
	"PandemicInsight/src/datasource/file"
	"PandemicInsight/src/processor"
	"PandemicInsight/src/storage"
)

func main() {
	download := flag.Bool("download", false, "强制重新下载数据")
	dashboard := flag.Bool("dashboard", false, "启动web查询界面")
	display := flag.String("display", "", "查询指定地区后退出")
	year := flag.Int("year", 0, "查询年份(与-display配合)")
	month := flag.Int("month", 0, "查询月份1-12(与-display配合)")
	flag.Parse()

	cfg, dcfg, err := config.LoadConfig("./config", "config.json", "dataconfig.json")
	if err != nil {
		log.Fatal("加载配置失败:", err)
	}

	// 初始化日志系统
	logger, err := storage.NewLogger(cfg.LogName)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Close()

	if *download {
		if _, err := file.DownloadData(cfg.Data.URL, cfg.Data.Dir, cfg.Data.File, true); err != nil {
			logger.Error("下载数据失败: " + err.Error())
			os.Exit(1)
		}
		logger.Info("数据下载完成")
	}

	dataPath, err := file.GetDataPath(cfg.Data.Dir, cfg.Data.File)
	if err != nil {
		logger.Error(err.Error() + " (可用 -download 获取)")
		os.Exit(1)
	}

	cache := &file.Cache{}
	df, latest, err := cache.Load(dataPath, cfg.Data.SheetName, dcfg)
	if err != nil {
		logger.Error("装载数据失败: " + err.Error())
		os.Exit(1)
	}
	stats := processor.NewCovidStats(df, latest)
	logger.Info(fmt.Sprintf("数据装载完成: %d行, 最新观测日期 %s", df.Nrow(), latest))

	// 单次查询模式
	if *display != "" {
		runDisplay(stats, *display, *year, *month)
		return
	}

	reload := func(path string) {
		cache.Invalidate()
		df, latest, err := cache.Load(path, cfg.Data.SheetName, dcfg)
		if err != nil {
			logger.Error("重新装载数据失败: " + err.Error())
			return
		}
		stats.SetDF(df, latest)
		msg := fmt.Sprintf("数据已更新: %d行, 最新观测日期 %s", df.Nrow(), latest)
		logger.Info(msg)

		if cfg.Webhook != "" {
			go func() {
				if err := datapush.PushText(cfg.Webhook, msg); err != nil {
					logger.Error("推送数据更新通知失败: " + err.Error())
				}
			}()
		}
	}

	// 数据目录监控: 数据文件有新的写入时重新装载
	monitor, err := file.NewFileMonitor(cfg.Data.Dir)
	if err != nil {
		logger.Error("创建文件监控失败: " + err.Error())
	} else {
		defer monitor.Close()
		go func() {
			if err := monitor.Watch(reload); err != nil {
				logger.Error("文件监控错误: " + err.Error())
			}
		}()
	}

	// 设置定时任务
	c := cron.New()

	// 定时重新下载数据, 下载完成后由文件监控触发重新装载
	if interval := time.Duration(cfg.Data.RefreshInterval); interval > 0 {
		cronSpec := fmt.Sprintf("@every %s", interval)
		err = c.AddFunc(cronSpec, func() {
			logger.Info(fmt.Sprintf("开始定时下载数据(间隔: %v)...", interval))
			if _, err := file.DownloadData(cfg.Data.URL, cfg.Data.Dir, cfg.Data.File, true); err != nil {
				logger.Error("定时下载数据失败: " + err.Error())
				return
			}
			logger.Info("定时下载完成")
			logger.CheckRotate(cfg)
		})
		if err != nil {
			logger.Error("创建下载任务失败: " + err.Error())
			return
		}
	}

	// 定时检查数据邮件, 附件保存到数据目录后同样由文件监控接手
	if cfg.Email.Server != "" {
		emailClient := email.NewEmailClient(
			cfg.Email.Server,
			cfg.Email.Username,
			cfg.Email.Password)
		handler := email.NewDatasetAttachmentHandler(cfg.Email.TargetSubject, cfg.Data.Dir)

		interval := time.Duration(cfg.Email.CheckInterval)
		cronSpec := fmt.Sprintf("@every %s", interval)
		err = c.AddFunc(cronSpec, func() {
			logger.Info(fmt.Sprintf("开始定时检查邮箱(间隔: %v)...", interval))

			newEmail, err := email.CheckAndProcessEmails(emailClient, cfg.Email.TargetSubject, logger)
			if err != nil {
				logger.Error("检查处理邮件失败: " + err.Error())
				return
			}
			if newEmail == nil {
				return
			}

			if err := handler.Handle(newEmail, logger); err != nil {
				logger.Error(fmt.Sprintf("处理邮件失败(UID:%d): %v", newEmail.UID, err))
				return
			}
			if rows := handler.Data().GetDF().Nrow(); rows > 0 {
				logger.Info(fmt.Sprintf("邮件数据就绪: %d行, 等待文件监控重新装载", rows))
			}
		})
		if err != nil {
			logger.Error("创建邮件检查任务失败: " + err.Error())
			return
		}
	}

	c.Start()
	defer c.Stop()

	if *dashboard {
		go startWebUI(cfg, stats, logger)
	}

	logger.Info("疫情数据服务已启动，按Ctrl+C退出")
	waitForShutdown(logger)
}

// runDisplay 命令行单次查询
// 给了年月时输出月度汇总, 否则打印该地区的全部观测
func runDisplay(stats *processor.CovidStats, location string, year, month int) {
	if year != 0 || month != 0 {
		summary, noData, err := stats.QueryPeriod(processor.PeriodQuery{
			Location: location, Year: year, Month: month,
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		if noData != nil {
			fmt.Println(noData.String())
			return
		}
		fmt.Println(summary.Format())
		return
	}

	matched := stats.DF().Filter(
		dataframe.F{
			Colname:    processor.ColLocation,
			Comparator: series.CompFunc,
			Comparando: func(el series.Element) bool {
				return strings.EqualFold(strings.TrimSpace(el.String()), strings.TrimSpace(location))
			},
		},
	)
	if matched.Nrow() == 0 {
		fmt.Printf("未找到地区: %s\n", strings.TrimSpace(location))
		return
	}
	fmt.Println(matched)
}

// startWebUI 启动查询与日志的web界面
func startWebUI(cfg *config.Config, stats *processor.CovidStats, logger *storage.Logger) {
	// 实时日志流
	http.HandleFunc("/logs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Transfer-Encoding", "chunked")

		logChan := logger.Subscribe()

		for {
			select {
			case msg := <-logChan:
				if _, err := fmt.Fprintln(w, msg); err != nil {
					return
				}
				if f, ok := w.(http.Flusher); ok {
					f.Flush()
				}
			case <-r.Context().Done():
				return
			}
		}
	})

	// 月度汇总查询: /summary?location=Kenya&year=2021&month=1
	http.HandleFunc("/summary", func(w http.ResponseWriter, r *http.Request) {
		year, _ := strconv.Atoi(r.URL.Query().Get("year"))
		month, _ := strconv.Atoi(r.URL.Query().Get("month"))
		summary, noData, err := stats.QueryPeriod(processor.PeriodQuery{
			Location: r.URL.Query().Get("location"),
			Year:     year,
			Month:    month,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if noData != nil {
			json.NewEncoder(w).Encode(map[string]interface{}{"no_data": noData})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"summary":   summary,
			"formatted": summary.Format(),
		})

		// 需要时把查询结果同步推送到webhook
		if cfg.Webhook != "" && r.URL.Query().Get("push") == "1" {
			go func() {
				if err := datapush.PushSummary(cfg.Webhook, summary); err != nil {
					logger.Error("推送汇总失败: " + err.Error())
				}
			}()
		}
	})

	// 各地区最新观测(按累计确诊降序)
	http.HandleFunc("/latest", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"latest_date": stats.LatestDate(),
			"locations":   processor.LatestPerLocation(stats.DF()).Maps(),
		})
	})

	// 全球每日趋势数据
	http.HandleFunc("/trend", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		json.NewEncoder(w).Encode(processor.GlobalTrend(stats.DF()))
	})

	// 生成月度Excel报告: /report?year=2021&month=1, 配置了SMTP时随邮件发出
	http.HandleFunc("/report", func(w http.ResponseWriter, r *http.Request) {
		year, _ := strconv.Atoi(r.URL.Query().Get("year"))
		month, _ := strconv.Atoi(r.URL.Query().Get("month"))

		summaries, err := stats.MonthlyReport(year, month)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		reportPath := cfg.SendEmail.Attachment
		if reportPath == "" {
			reportPath = fmt.Sprintf("report-%04d-%02d.xlsx", year, month)
		}
		if err := processor.ExportReport(summaries, reportPath); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		logger.Info(fmt.Sprintf("月度报告已导出: %s (%d个地区)", reportPath, len(summaries)))

		if cfg.SendEmail.Server != "" {
			body := fmt.Sprintf("%04d-%02d 月度疫情汇总, 共%d个地区, 详见附件。", year, month, len(summaries))
			if err := email.SendReport(cfg, body); err != nil {
				logger.Error("发送报告邮件失败: " + err.Error())
			}
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"report":    reportPath,
			"locations": len(summaries),
		})
	})

	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	logger.Info("web界面已启动: " + addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		logger.Error("web界面退出: " + err.Error())
	}
}

func waitForShutdown(logger *storage.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Received signal: " + sig.String() + ", shutting down...")
	logger.Close()
	os.Exit(0)
}
