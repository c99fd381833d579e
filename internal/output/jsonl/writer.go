// Package jsonl 实现异步 JSONL 文件写入。
// 调用方负责 JSON 编码，文件 I/O 在后台 goroutine 完成，热路径只做投递。
package jsonl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// op 投递到后台 goroutine 的操作
// line 非 nil 表示写入；line 为 nil 表示 flush；closing 表示关闭
type op struct {
	line    []byte
	done    chan error
	closing bool
}

// Writer 异步 JSONL 写入器
// Write 在调用方完成 JSON 编码后将整行投递给后台 goroutine 落盘
type Writer struct {
	// path 输出文件路径
	path string
	// ch 操作通道
	ch chan op

	closeOnce sync.Once
	closeErr  error
	closed    int32

	// sendMu 防止 Close 关闭通道时并发投递
	sendMu sync.Mutex

	wg sync.WaitGroup
}

// NewWriter 创建 JSONL 写入器并启动后台落盘 goroutine
// 输出文件以追加模式打开，目录不存在时自动创建
// 参数 path: 输出文件路径
// 参数 bufferSize: 投递通道容量
func NewWriter(path string, bufferSize int) (*Writer, error) {
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("打开输出文件失败: %w", err)
	}

	w := &Writer{
		path: path,
		ch:   make(chan op, bufferSize),
	}

	w.wg.Add(1)
	go w.loop(f)

	return w, nil
}

// Write 编码并异步写入一条记录
// 编码错误立即返回给调用方；投递成功不代表已落盘
func (w *Writer) Write(v any) error {
	if w == nil {
		return fmt.Errorf("writer 为空")
	}
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("编码 JSONL 记录失败: %w", err)
	}

	w.sendMu.Lock()
	defer w.sendMu.Unlock()
	if atomic.LoadInt32(&w.closed) == 1 {
		return fmt.Errorf("writer 已关闭")
	}
	w.ch <- op{line: line}
	return nil
}

// Flush 等待缓冲区落盘
func (w *Writer) Flush() error {
	if w == nil {
		return nil
	}
	w.sendMu.Lock()
	defer w.sendMu.Unlock()
	if atomic.LoadInt32(&w.closed) == 1 {
		return nil
	}
	done := make(chan error, 1)
	w.ch <- op{done: done}
	return <-done
}

// Close 关闭写入器，先 flush 再关闭文件
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.closeOnce.Do(func() {
		w.sendMu.Lock()
		atomic.StoreInt32(&w.closed, 1)
		done := make(chan error, 1)
		w.ch <- op{done: done, closing: true}
		close(w.ch)
		w.sendMu.Unlock()
		w.closeErr = <-done
	})
	w.wg.Wait()
	return w.closeErr
}

// Path 返回输出文件路径
func (w *Writer) Path() string {
	return w.path
}

// loop 后台落盘循环
func (w *Writer) loop(f *os.File) {
	defer w.wg.Done()
	defer f.Close()

	bw := bufio.NewWriterSize(f, 1<<20)

	for req := range w.ch {
		switch {
		case req.closing:
			req.done <- bw.Flush()
			return
		case req.line == nil:
			req.done <- bw.Flush()
		default:
			if _, err := bw.Write(req.line); err != nil {
				continue
			}
			bw.WriteByte('\n')
		}
	}
	bw.Flush()
}
