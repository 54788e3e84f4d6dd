package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"veia/viewsync/internal/ledger"
	"veia/viewsync/internal/views"
	"veia/viewsync/internal/worker"
	"veia/viewsync/pkg/config"
)

var (
	configPath = flag.String("config", "./config/viewsync.yaml", "配置文件路径")
	only       = flag.String("views", "", "只计算指定视图，逗号分隔")
	seed       = flag.Int64("seed", 42, "随机种子")
	dump       = flag.Bool("dump", false, "把文档输出到标准输出（不落盘、不发布）")
)

func main() {
	flag.Parse()

	fmt.Println("========================================")
	fmt.Println("  FastTest - 视图快速验证工具")
	fmt.Println("========================================")

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("❌ Failed to load config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ Config loaded: %s\n", cfg.App.Name)

	// 2. 读取 CSV 账本（不连接数据库）
	ctx := context.Background()
	src := &ledger.CSVSource{
		TransactionsPath: cfg.Source.TransactionsPath,
		UsersPath:        cfg.Source.UsersPath,
	}
	l, err := src.Load(ctx)
	if err != nil {
		fmt.Printf("❌ Failed to load ledger: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ Ledger loaded: %d transactions, %d anomalies\n", l.Len(), l.AnomalyCount())

	// 3. 逐个计算视图
	selected := views.All(worker.ViewParams(cfg))
	if *only != "" {
		selected = filterViews(selected, strings.Split(*only, ","))
	}

	fmt.Println("\n========================================")
	fmt.Println("  Building Views")
	fmt.Println("========================================")

	successCount := 0
	failureCount := 0
	for i, v := range selected {
		fmt.Printf("\n[View %d/%d] %s\n", i+1, len(selected), v.Name())
		fmt.Println("----------------------------------------")

		startTime := time.Now()
		artifacts, err := v.Build(ctx, l, views.NewRand(*seed, v.Name()))
		duration := time.Since(startTime)

		if err != nil {
			fmt.Printf("❌ FAILED: %v\n", err)
			fmt.Printf("⏱️  Duration: %v\n", duration)
			failureCount++
			continue
		}

		for _, art := range artifacts {
			fmt.Printf("  - %s.json %v\n", art.Name, art.Counts)
			if *dump {
				if err := printArtifact(art); err != nil {
					fmt.Printf("    encode failed: %v\n", err)
				}
			}
		}
		fmt.Printf("✅ PASSED\n")
		fmt.Printf("⏱️  Duration: %v\n", duration)
		successCount++
	}

	// 4. 汇总
	fmt.Println("\n========================================")
	fmt.Println("  Summary")
	fmt.Println("========================================")
	fmt.Printf("Total: %d\n", len(selected))
	fmt.Printf("Passed: %d ✅\n", successCount)
	fmt.Printf("Failed: %d ❌\n", failureCount)

	if failureCount > 0 {
		os.Exit(1)
	}
}

// filterViews 按名称筛选，未知名称直接忽略
func filterViews(all []views.View, names []string) []views.View {
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[strings.TrimSpace(n)] = true
	}
	out := make([]views.View, 0, len(names))
	for _, v := range all {
		if wanted[v.Name()] {
			out = append(out, v)
		}
	}
	return out
}

func printArtifact(art views.Artifact) error {
	data, err := json.MarshalIndent(art.Payload, "    ", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("    %s\n", data)
	return nil
}
