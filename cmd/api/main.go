// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

const (
	serviceName = "download-gate-api"
	version     = "0.1.0"
)

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:    serviceName,
		Usage:   "パスワード保護付きファイル配布ポータルの API サーバー",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "読み込む .env ファイル（省略時は .env.local）",
			},
		},
		// サブコマンドなしで起動した場合は serve と同じ
		Action: runServe,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "HTTP サーバーを起動します",
				Action: runServe,
			},
			hashPasswordCommand(),
		},
	}
}
