package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"veia/viewsync/internal/metrics"
	"veia/viewsync/internal/views"
	"veia/viewsync/internal/worker"
	"veia/viewsync/pkg/config"
	"veia/viewsync/pkg/logger"
)

var (
	configPath string
	onlyViews  []string
	seed       int64
	outputDir  string

	rootCmd = &cobra.Command{
		Use:          "veia",
		Short:        "Build the VEIA visualization views from a normalized trade ledger",
		SilenceUsage: true,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Load the ledger, compute every view and publish the documents",
		RunE:  runPipeline,
	}

	viewsCmd = &cobra.Command{
		Use:   "views",
		Short: "List the registered views",
		RunE:  listViews,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./config/viewsync.yaml", "配置文件路径")

	runCmd.Flags().StringSliceVar(&onlyViews, "only", nil, "只计算指定视图（逗号分隔）")
	runCmd.Flags().Int64Var(&seed, "seed", 0, "随机种子，0 表示按时间取种子")
	runCmd.Flags().StringVarP(&outputDir, "output", "o", "", "输出目录（覆盖配置）")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(viewsCmd)
}

// loadConfig 加载配置并应用命令行覆盖
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("only") {
		cfg.Pipeline.Only = onlyViews
	}
	if cmd.Flags().Changed("seed") {
		cfg.Pipeline.Seed = seed
	}
	if cmd.Flags().Changed("output") {
		cfg.Output.Dir = outputDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	log.Println("========================================")
	log.Println("  VEIA View Sync Starting...")
	log.Println("========================================")

	// 1. 加载配置
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log.Printf("Config loaded: %s, env: %s, log_level: %s\n", cfg.App.Name, cfg.App.Env, cfg.App.LogLevel)

	// 2. 初始化 Logger
	zapLogger, err := logger.NewZapLogger(cfg.App.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer zapLogger.Sync()

	// 3. 退出信号
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 4. 指标
	m := metrics.New(prometheus.NewRegistry())
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Addr); err != nil {
				zapLogger.Errorf(ctx, "[Metrics] serve failed: %v", err)
			}
		}()
	}

	// 5. 创建 Manager
	mgr, err := worker.NewManagerInstance(ctx, cfg, zapLogger, m)
	if err != nil {
		return fmt.Errorf("failed to create manager: %w", err)
	}
	defer mgr.Shutdown()

	// 6. 执行
	report, err := mgr.Run(ctx)
	if report != nil {
		log.Println("========================================")
		log.Printf("  Run %s: %d views, %d artifacts, %d failed\n",
			report.RunID, len(report.Views), report.Artifacts(), len(report.Failed()))
		log.Println("========================================")
	}
	return err
}

func listViews(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, v := range views.All(worker.ViewParams(cfg)) {
		fmt.Fprintln(out, v.Name())
	}
	return nil
}
