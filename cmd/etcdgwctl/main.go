// etcdgwctl 是 etcd JSON 网关的命令行客户端。
//
// 用法:
//
//	etcdgwctl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-c, --config      配置文件路径 (JSON/YAML)
//	-e, --endpoints   网关端点，逗号分隔 (默认: 127.0.0.1:2379)
//	-t, --timeout     请求超时时间 (默认: 5s)
//	-p, --prefix      逻辑键前缀
//	-u, --user        认证信息，格式 user:password
//
// 命令:
//
//	get <key>             读取键（--prefix-scan 按前缀读取）
//	put <key> <value>     写入键
//	del <key>             删除键（--prefix-scan 按前缀删除）
//	watch <key>           监听键变更
//	lease <子命令>        租约管理 (grant/revoke/ttl/list)
//	version               查看网关版本
//
// 退出码:
//
//	0: 命令执行成功
//	1: 命令执行失败
//	2: 参数错误（缺少必需参数、未知命令等）
//
// 示例:
//
//	etcdgwctl -e 10.0.0.1:2379,10.0.0.2:2379 get /conf/app
//	etcdgwctl put /conf/app '{"debug":true}'
//	etcdgwctl watch /conf --prefix-scan
//	etcdgwctl -c gateway.yaml lease grant --ttl 30
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
)

// defaultTimeout 默认请求超时。
const defaultTimeout = 5 * time.Second

// 版本信息（可通过 -ldflags 注入）。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

// createApp 创建 CLI 应用。
func createApp() *cli.Command {
	return &cli.Command{
		Name:    "etcdgwctl",
		Usage:   "etcd JSON 网关命令行客户端",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "配置文件路径 (JSON/YAML)",
			},
			&cli.StringFlag{
				Name:    "endpoints",
				Aliases: []string{"e"},
				Usage:   "网关端点，逗号分隔",
				Value:   "127.0.0.1:2379",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "请求超时时间",
				Value:   defaultTimeout,
			},
			&cli.StringFlag{
				Name:    "prefix",
				Aliases: []string{"p"},
				Usage:   "逻辑键前缀",
			},
			&cli.StringFlag{
				Name:    "user",
				Aliases: []string{"u"},
				Usage:   "认证信息，格式 user:password",
			},
		},
		Commands:       createCommands(),
		DefaultCommand: "help",
		Authors: []any{
			"etcdgw Team",
		},
		// 设计决策: 禁止 urfave/cli 直接调用 os.Exit，
		// 由 run() 统一处理退出码映射。
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}
}

func run() int {
	app := createApp()

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx, os.Args); err != nil {
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(os.Stderr, "参数错误: %v\n", usageErr)
			return 2
		}
		if isCLIUsageError(err) {
			return 2
		}
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		return 1
	}

	return 0
}

// usageError 表示参数错误（退出码 2）。
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usageErrorf(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// isCLIUsageError 识别 urfave/cli 框架产生的参数类错误。
func isCLIUsageError(err error) bool {
	if _, ok := err.(cli.ExitCoder); ok {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "flag provided but not defined") ||
		strings.Contains(msg, "No help topic for") ||
		strings.Contains(msg, "Incorrect Usage")
}
