package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"AgentWallet-Kit/internal/config"
)

var version = "0.1.0"

// main 是 agentwallet 命令行与守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "agentwallet 运行失败: %v\n", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	strict     bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "agentwallet",
		Short: "Compose wallet plugins into agent tools and serve them",
		Long: `agentwallet aggregates the tools contributed by wallet plugins for the
configured chain and exposes them over a REST API or directly on the command line.

Examples:
  agentwallet serve
  agentwallet tools --word action
  agentwallet invoke sign_message_baaaa '{"message":"hi"}'`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", config.Path(), "配置文件路径")
	root.PersistentFlags().BoolVar(&opts.strict, "strict", false, "遇到不兼容插件时直接失败而不是跳过")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newToolsCmd(opts))
	root.AddCommand(newInvokeCmd(opts))
	return root
}
