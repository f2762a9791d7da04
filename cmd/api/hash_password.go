package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/crypto/bcrypt"
)

// hashPasswordCommand は DOWNLOAD_PASSWORD / ADMIN_PASSWORD に設定できる bcrypt ハッシュを出力します。
func hashPasswordCommand() *cli.Command {
	return &cli.Command{
		Name:      "hash-password",
		Usage:     "パスワードの bcrypt ハッシュを出力します（引数がなければ標準入力から読みます）",
		ArgsUsage: "[password]",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "cost",
				Value: bcrypt.DefaultCost,
				Usage: "bcrypt のコスト",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			password := cmd.Args().First()
			if password == "" {
				var err error
				password, err = readPassword(os.Stdin)
				if err != nil {
					return err
				}
			}
			hash, err := hashPassword(password, int(cmd.Int("cost")))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.Root().Writer, hash)
			return err
		},
	}
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func hashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return "", fmt.Errorf("cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
