package reporter

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"scenescape-counter/internal/aggregator"
	"scenescape-counter/internal/models"
)

const title = "SceneScape People Counter"

var separator = strings.Repeat("=", 60)

// Options 输出配置
type Options struct {
	// Interactive 终端模式：实时行用回车覆盖；否则逐行输出
	Interactive bool
	// Interval 实时行最小刷新间隔，0 表示每次更新都输出
	Interval time.Duration
	// StatusEvery 每 N 条消息输出一次峰值状态，0 关闭
	StatusEvery int
	// SummaryXLSX 退出时导出 Excel 的路径，空则不导出
	SummaryXLSX string
	// Category 统计类别，用于 Excel 元数据
	Category string
}

// Reporter 控制台输出
// OnUpdate 在消息处理回调中串行调用
type Reporter struct {
	out    *bufio.Writer
	opts   Options
	logger *zap.Logger
	now    func() time.Time

	lastLine time.Time
	lineOpen bool
}

// New 创建 Reporter
func New(w io.Writer, opts Options, logger *zap.Logger) *Reporter {
	return &Reporter{
		out:    bufio.NewWriter(w),
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// PrintBanner 开始接收数据前的提示
func (r *Reporter) PrintBanner() {
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, separator)
	fmt.Fprintln(r.out, title+" - Live Data")
	fmt.Fprintln(r.out, separator)
	fmt.Fprintln(r.out, "Press Ctrl+C to stop...")
	fmt.Fprintln(r.out)
	r.flush()
}

// OnUpdate 每次聚合更新后调用
func (r *Reporter) OnUpdate(_ *models.SceneEvent, snap aggregator.Snapshot) {
	now := r.now()
	if r.opts.Interval <= 0 || r.lastLine.IsZero() || now.Sub(r.lastLine) >= r.opts.Interval {
		r.writeLiveLine(snap)
		r.lastLine = now
	}

	if r.opts.StatusEvery > 0 && snap.MessageCount%int64(r.opts.StatusEvery) == 0 {
		r.closeLine()
		r.writeStatus(snap)
		fmt.Fprintln(r.out)
	}

	r.flush()
}

// Final 关闭时输出峰值汇总并刷新输出
func (r *Reporter) Final(snap aggregator.Snapshot) error {
	r.closeLine()
	r.writeStatus(snap)
	if err := r.out.Flush(); err != nil {
		return fmt.Errorf("failed to flush summary: %w", err)
	}

	if r.opts.SummaryXLSX != "" {
		if err := WriteSummaryWorkbook(r.opts.SummaryXLSX, snap, r.opts.Category); err != nil {
			return err
		}
		r.logger.Info("Peak summary exported", zap.String("path", r.opts.SummaryXLSX))
	}
	return nil
}

// LiveLine 实时行内容，如 "[10:15:30] Total: 3 people (Lobby: 1 | Retail: 2) - 42 msgs"
func LiveLine(snap aggregator.Snapshot) string {
	parts := make([]string, 0, len(snap.Scenes))
	for _, sc := range snap.Scenes {
		parts = append(parts, fmt.Sprintf("%s: %d", sc.Name, sc.Current))
	}
	return fmt.Sprintf("[%s] Total: %d people (%s) - %d msgs",
		formatClock(snap.LastUpdate), snap.GlobalCurrent, strings.Join(parts, " | "), snap.MessageCount)
}

func (r *Reporter) writeLiveLine(snap aggregator.Snapshot) {
	if len(snap.Scenes) == 0 {
		return
	}
	if r.opts.Interactive {
		fmt.Fprint(r.out, "\r"+LiveLine(snap))
		r.lineOpen = true
		return
	}
	fmt.Fprintln(r.out, LiveLine(snap))
}

// closeLine 终端模式下结束当前实时行
func (r *Reporter) closeLine() {
	if r.lineOpen {
		fmt.Fprintln(r.out)
		r.lineOpen = false
	}
}

func (r *Reporter) writeStatus(snap aggregator.Snapshot) {
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, separator)
	fmt.Fprintln(r.out, title+" - Peak Occupancy Summary")
	fmt.Fprintln(r.out, separator)

	if snap.MessageCount == 0 {
		fmt.Fprintln(r.out, "Last Update: No data received yet")
		fmt.Fprintln(r.out, separator)
		return
	}

	fmt.Fprintf(r.out, "Last Update: %s\n", formatClock(snap.LastUpdate))
	fmt.Fprintf(r.out, "Total Messages Processed: %s\n", humanize.Comma(snap.MessageCount))
	fmt.Fprintf(r.out, "Maximum Total People Detected: %d\n", snap.GlobalPeak)
	fmt.Fprintln(r.out)

	fmt.Fprintln(r.out, "Maximum People Count by Scene:")
	for _, sc := range snap.Scenes {
		fmt.Fprintf(r.out, "  %s: %d people (currently: %d)\n", sc.Name, sc.Peak, sc.Current)
	}
	fmt.Fprintln(r.out, separator)
}

func (r *Reporter) flush() {
	if err := r.out.Flush(); err != nil {
		r.logger.Warn("Failed to flush output", zap.Error(err))
	}
}

func formatClock(t time.Time) string {
	if t.IsZero() {
		return "No data"
	}
	return t.Format("15:04:05")
}
