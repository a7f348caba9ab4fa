// Package main は pdf2img API を操作するコマンドラインクライアントです。
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
