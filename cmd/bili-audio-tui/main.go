package main

import (
	"fmt"
	"os"

	"github.com/qiuyin/bili-audio-archiver/internal/config"
	"github.com/qiuyin/bili-audio-archiver/internal/tui"
)

func main() {
	if err := tui.Run(config.DefaultSettings()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
