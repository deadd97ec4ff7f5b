// Package diag 提供调试用的进程诊断信息
package diag

import (
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v4/process"
)

// MemoryInfo 进程内存信息
type MemoryInfo struct {
	PID int    `json:"pid"`
	RSS uint64 `json:"rss"`
	VMS uint64 `json:"vms"`
}

// String 以 MB 为单位输出
func (m MemoryInfo) String() string {
	return fmt.Sprintf("pid=%d rss=%.1fMB vms=%.1fMB", m.PID, mb(m.RSS), mb(m.VMS))
}

func mb(b uint64) float64 {
	return float64(b) / (1 << 20)
}

// GetMemoryInfo 按 PID 获取进程内存信息
func GetMemoryInfo(pid int) (*MemoryInfo, error) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil, fmt.Errorf("进程不存在: PID=%d", pid)
	}

	mem, err := proc.MemoryInfo()
	if err != nil {
		return nil, fmt.Errorf("获取内存信息失败: %w", err)
	}

	return &MemoryInfo{
		PID: pid,
		RSS: mem.RSS,
		VMS: mem.VMS,
	}, nil
}

// MemorySnapshot 当前进程的内存快照
func MemorySnapshot() (string, error) {
	info, err := GetMemoryInfo(os.Getpid())
	if err != nil {
		return "", err
	}
	return info.String(), nil
}
