// lockmgr 从标准输入读取加锁/解锁命令并交给锁管理器处理，后台检测器负责消解死锁。
//
//	lock <node> <resource>
//	unlock <node> <resource>
//	dump
//	detect
//
// 输入结束后等待一段时间让检测器完成最后一轮，然后退出。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
