package ledger

import "context"

// Source 账本来源（CSV 文件或数据库）
type Source interface {
	Load(ctx context.Context) (*Ledger, error)
}

// CSVSource 从两张 CSV 表加载账本
type CSVSource struct {
	TransactionsPath string
	UsersPath        string
}

// Load 实现 Source 接口
func (s *CSVSource) Load(ctx context.Context) (*Ledger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return LoadCSV(s.TransactionsPath, s.UsersPath)
}
