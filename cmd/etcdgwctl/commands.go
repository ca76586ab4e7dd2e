package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/etcdgw/pkg/gateway"
)

// 创建所有子命令。
func createCommands() []*cli.Command {
	return []*cli.Command{
		createGetCommand(),
		createPutCommand(),
		createDelCommand(),
		createWatchCommand(),
		createLeaseCommand(),
		createVersionCommand(),
	}
}

// buildClient 按全局选项构造网关客户端。
// 配置文件与命令行选项可叠加，命令行优先。
func buildClient(cmd *cli.Command) (*gateway.Client, error) {
	cfg := gateway.DefaultConfig()
	if path := cmd.String("config"); path != "" {
		loaded, err := gateway.LoadConfigFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if cmd.IsSet("endpoints") || len(cfg.Endpoints) == 0 {
		cfg.Endpoints = strings.Split(cmd.String("endpoints"), ",")
	}
	if cmd.IsSet("timeout") {
		cfg.Timeout = cmd.Duration("timeout")
	}
	if prefix := cmd.String("prefix"); prefix != "" {
		cfg.KeyPrefix = prefix
	}
	if user := cmd.String("user"); user != "" {
		name, password, ok := strings.Cut(user, ":")
		if !ok {
			return nil, usageErrorf("--user 格式应为 user:password")
		}
		cfg.Username = name
		cfg.Password = password
	}
	return gateway.New(cfg)
}

// printJSON 以缩进 JSON 输出结果。
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// createGetCommand 创建 get 子命令。
func createGetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "读取键",
		ArgsUsage: "<key>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "prefix-scan",
				Usage: "按前缀读取所有匹配的键",
			},
			&cli.Int64Flag{
				Name:  "rev",
				Usage: "在指定 revision 上读取",
			},
			&cli.Int64Flag{
				Name:  "limit",
				Usage: "限制返回数量",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			key := cmd.Args().First()
			if key == "" {
				return usageErrorf("get 需要一个 key 参数")
			}
			client, err := buildClient(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			var opts []gateway.OpOption
			if rev := cmd.Int64("rev"); rev > 0 {
				opts = append(opts, gateway.WithRev(rev))
			}
			if limit := cmd.Int64("limit"); limit > 0 {
				opts = append(opts, gateway.WithLimit(limit))
			}

			var resp *gateway.GetResponse
			if cmd.Bool("prefix-scan") {
				resp, err = client.GetPrefix(ctx, key, opts...)
			} else {
				resp, err = client.Get(ctx, key, opts...)
			}
			if err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
}

// createPutCommand 创建 put 子命令。
func createPutCommand() *cli.Command {
	return &cli.Command{
		Name:      "put",
		Usage:     "写入键",
		ArgsUsage: "<key> <value>",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:  "lease",
				Usage: "绑定的租约 ID",
			},
			&cli.BoolFlag{
				Name:  "prev-kv",
				Usage: "返回写入前的键值对",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args().Slice()
			if len(args) < 2 {
				return usageErrorf("put 需要 key 与 value 两个参数")
			}
			client, err := buildClient(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			var opts []gateway.OpOption
			if lease := cmd.Int64("lease"); lease != 0 {
				opts = append(opts, gateway.WithLease(lease))
			}
			if cmd.Bool("prev-kv") {
				opts = append(opts, gateway.WithPrevKV())
			}

			resp, err := client.Put(ctx, args[0], args[1], opts...)
			if err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
}

// createDelCommand 创建 del 子命令。
func createDelCommand() *cli.Command {
	return &cli.Command{
		Name:      "del",
		Usage:     "删除键",
		ArgsUsage: "<key>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "prefix-scan",
				Usage: "按前缀删除所有匹配的键",
			},
			&cli.BoolFlag{
				Name:  "prev-kv",
				Usage: "返回删除前的键值对",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			key := cmd.Args().First()
			if key == "" {
				return usageErrorf("del 需要一个 key 参数")
			}
			client, err := buildClient(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			var opts []gateway.OpOption
			if cmd.Bool("prev-kv") {
				opts = append(opts, gateway.WithPrevKV())
			}

			var resp *gateway.DeleteResponse
			if cmd.Bool("prefix-scan") {
				resp, err = client.DeletePrefix(ctx, key, opts...)
			} else {
				resp, err = client.Delete(ctx, key, opts...)
			}
			if err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
}

// createWatchCommand 创建 watch 子命令。
func createWatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "监听键变更，持续输出直到中断",
		ArgsUsage: "<key>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "prefix-scan",
				Usage: "按前缀监听",
			},
			&cli.Int64Flag{
				Name:  "rev",
				Usage: "从指定 revision 回放",
			},
			&cli.BoolFlag{
				Name:  "prev-kv",
				Usage: "事件附带变更前的键值对",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			key := cmd.Args().First()
			if key == "" {
				return usageErrorf("watch 需要一个 key 参数")
			}
			client, err := buildClient(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			var opts []gateway.WatchOption
			if cmd.Bool("prefix-scan") {
				opts = append(opts, gateway.WithPrefix())
			}
			if rev := cmd.Int64("rev"); rev > 0 {
				opts = append(opts, gateway.WithStartRev(rev))
			}
			if cmd.Bool("prev-kv") {
				opts = append(opts, gateway.WithWatchPrevKV())
			}

			ch, err := client.Watch(ctx, key, opts...)
			if err != nil {
				return err
			}
			for resp := range ch {
				if resp.Err != nil {
					return resp.Err
				}
				for _, event := range resp.Events {
					fmt.Printf("%s %s", event.Type, event.KV.Key)
					if event.Type == gateway.EventPut {
						fmt.Printf(" = %v", event.KV.Value)
					}
					fmt.Println()
				}
			}
			return nil
		},
	}
}

// createLeaseCommand 创建 lease 子命令组。
func createLeaseCommand() *cli.Command {
	return &cli.Command{
		Name:  "lease",
		Usage: "租约管理",
		Commands: []*cli.Command{
			{
				Name:  "grant",
				Usage: "创建租约",
				Flags: []cli.Flag{
					&cli.Int64Flag{
						Name:  "ttl",
						Usage: "租约时长（秒）",
						Value: 60,
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					client, err := buildClient(cmd)
					if err != nil {
						return err
					}
					defer func() { _ = client.Close() }()
					resp, err := client.LeaseGrant(ctx, cmd.Int64("ttl"), 0)
					if err != nil {
						return err
					}
					return printJSON(resp)
				},
			},
			{
				Name:      "revoke",
				Usage:     "撤销租约",
				ArgsUsage: "<lease-id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id, err := parseLeaseID(cmd.Args().First())
					if err != nil {
						return err
					}
					client, err := buildClient(cmd)
					if err != nil {
						return err
					}
					defer func() { _ = client.Close() }()
					header, err := client.LeaseRevoke(ctx, id)
					if err != nil {
						return err
					}
					return printJSON(header)
				},
			},
			{
				Name:      "ttl",
				Usage:     "查询租约剩余时间",
				ArgsUsage: "<lease-id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "keys",
						Usage: "一并列出绑定的键",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id, err := parseLeaseID(cmd.Args().First())
					if err != nil {
						return err
					}
					client, err := buildClient(cmd)
					if err != nil {
						return err
					}
					defer func() { _ = client.Close() }()
					resp, err := client.LeaseTimeToLive(ctx, id, cmd.Bool("keys"))
					if err != nil {
						return err
					}
					return printJSON(resp)
				},
			},
			{
				Name:  "list",
				Usage: "列出所有存活租约",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					client, err := buildClient(cmd)
					if err != nil {
						return err
					}
					defer func() { _ = client.Close() }()
					resp, err := client.Leases(ctx)
					if err != nil {
						return err
					}
					return printJSON(resp)
				},
			},
		},
	}
}

// createVersionCommand 创建 version 子命令。
func createVersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "查看网关版本",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			client, err := buildClient(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()
			info, err := client.Version(ctx)
			if err != nil {
				return err
			}
			return printJSON(info)
		},
	}
}

// parseLeaseID 解析十进制或 0x 前缀十六进制的租约 ID。
func parseLeaseID(arg string) (int64, error) {
	if arg == "" {
		return 0, usageErrorf("需要一个 lease-id 参数")
	}
	id, err := strconv.ParseInt(arg, 0, 64)
	if err != nil {
		return 0, usageErrorf("无效的 lease-id: %s", arg)
	}
	return id, nil
}
