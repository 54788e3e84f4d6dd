package worker

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ArtifactReport 单个文档的计数与发布结果
type ArtifactReport struct {
	Name       string
	Counts     map[string]int
	PublishErr error
}

// ViewReport 单个视图的执行结果
type ViewReport struct {
	View      string
	Artifacts []ArtifactReport
	Err       error
	Duration  time.Duration
}

// OK 计算与发布均成功
func (v *ViewReport) OK() bool {
	if v.Err != nil {
		return false
	}
	for _, a := range v.Artifacts {
		if a.PublishErr != nil {
			return false
		}
	}
	return true
}

// RunReport 一次运行的汇总
type RunReport struct {
	RunID        string
	Seed         int64
	Transactions int
	Anomalies    int
	Views        []ViewReport
}

// Failed 失败的视图名称
func (r *RunReport) Failed() []string {
	failed := make([]string, 0)
	for i := range r.Views {
		if !r.Views[i].OK() {
			failed = append(failed, r.Views[i].View)
		}
	}
	return failed
}

// Err 所有失败原因的合并错误；全部成功时返回 nil
func (r *RunReport) Err() error {
	var errs []error
	for i := range r.Views {
		v := &r.Views[i]
		if v.Err != nil {
			errs = append(errs, fmt.Errorf("view %s: %w", v.View, v.Err))
		}
		for _, a := range v.Artifacts {
			if a.PublishErr != nil {
				errs = append(errs, fmt.Errorf("artifact %s: %w", a.Name, a.PublishErr))
			}
		}
	}
	return errors.Join(errs...)
}

// Artifacts 已生成的文档数
func (r *RunReport) Artifacts() int {
	n := 0
	for i := range r.Views {
		n += len(r.Views[i].Artifacts)
	}
	return n
}

// formatCounts 按键排序输出 "k=v" 列表
func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, " ")
}
