package worker

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"veia/viewsync/internal/ledger"
	"veia/viewsync/internal/metrics"
	"veia/viewsync/internal/publish"
	"veia/viewsync/internal/views"
	"veia/viewsync/pkg/config"
	mysqlinfra "veia/viewsync/pkg/infra/mysql"
	redisinfra "veia/viewsync/pkg/infra/redis"
	"veia/viewsync/pkg/lmstfy"
	"veia/viewsync/pkg/logger"
)

// buildDeps 按配置装配账本来源与输出端
func buildDeps(ctx context.Context, cfg *config.Config, log logger.Logger, m *metrics.Metrics) (deps Deps, err error) {
	deps.Metrics = m
	deps.Views = views.All(ViewParams(cfg))

	// 失败时释放已打开的连接
	defer func() {
		if err != nil {
			for _, closeFn := range deps.Closers {
				_ = closeFn()
			}
		}
	}()

	// 1. 数据库（账本来源或视图持久化任一需要时打开）
	var db *gorm.DB
	if cfg.Source.Kind == config.SourceKindMySQL || cfg.MySQL.StoreViews {
		db, err = mysqlinfra.Open(cfg.MySQL.DSN)
		if err != nil {
			return deps, err
		}
		deps.Closers = append(deps.Closers, func() error { return mysqlinfra.Close(db) })
	}

	// 2. 账本来源
	switch cfg.Source.Kind {
	case config.SourceKindMySQL:
		deps.Source = mysqlinfra.NewLedgerDAO(db)
	default:
		deps.Source = &ledger.CSVSource{
			TransactionsPath: cfg.Source.TransactionsPath,
			UsersPath:        cfg.Source.UsersPath,
		}
	}

	// 3. 输出端：文件始终开启
	fileSink, err := publish.NewFileSink(cfg.Output.Dir)
	if err != nil {
		return deps, err
	}
	sinks := []publish.Sink{fileSink}

	if cfg.MySQL.StoreViews {
		dao := mysqlinfra.NewViewDAO(db)
		if err = dao.Migrate(ctx); err != nil {
			return deps, err
		}
		sinks = append(sinks, publish.NewMySQLSink(dao))
	}

	if cfg.Redis.Enabled {
		var store *redisinfra.ViewStore
		store, err = redisinfra.NewViewStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			cfg.Redis.Prefix, cfg.Redis.Channel, cfg.Redis.TTL)
		if err != nil {
			return deps, err
		}
		deps.Closers = append(deps.Closers, store.Close)
		sinks = append(sinks, publish.NewRedisSink(store))
	}

	if cfg.Lmstfy.Enabled {
		var cli *lmstfy.Client
		cli, err = lmstfy.NewClient(cfg.Lmstfy.Host, cfg.Lmstfy.Port, cfg.Lmstfy.Namespace, cfg.Lmstfy.Token)
		if err != nil {
			return deps, fmt.Errorf("failed to create lmstfy client: %w", err)
		}
		sinks = append(sinks, publish.NewLmstfySink(cli, cfg.Lmstfy.Queue, cfg.Lmstfy.TTL))
	}

	deps.Publisher = publish.NewPublisher(sinks, publish.Options{
		Indent:     cfg.Output.Indent,
		MaxRetries: cfg.Output.MaxRetries,
		MaxElapsed: cfg.Output.RetryMaxElapsed,
	}, log, m)

	log.Infof(ctx, "[Manager] Initialized with source: %s, sinks: %v", cfg.Source.Kind, deps.Publisher.Sinks())
	return deps, nil
}
