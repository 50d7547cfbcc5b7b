package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	xerrors "AgentWallet-Kit/internal/errors"
	"AgentWallet-Kit/sdk/go/agentwallet"
)

func newInvokeCmd(opts *rootOptions) *cobra.Command {
	var (
		remote  remoteOptions
		queued  bool
		wait    time.Duration
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "invoke <tool> [params-json]",
		Short: "Validate and invoke a single tool",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			params := json.RawMessage(`{}`)
			if len(args) == 2 {
				params = json.RawMessage(args[1])
			}
			if !json.Valid(params) {
				return xerrors.New(xerrors.CodeInvalidParameters, "参数必须是合法的 JSON")
			}

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			out := cmd.OutOrStdout()

			if remote.server != "" {
				client, err := remote.client()
				if err != nil {
					return err
				}
				if queued {
					inv, err := client.Submit(ctx, agentwallet.Submission{Tool: name, Params: params}, wait)
					if err != nil {
						return err
					}
					return printJSON(out, inv)
				}
				var result json.RawMessage
				if err := client.Invoke(ctx, name, params, &result); err != nil {
					return err
				}
				return printJSON(out, map[string]any{"tool": name, "result": result})
			}
			if queued {
				return fmt.Errorf("--queue 需要同时指定 --server")
			}

			a, err := loadApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			result, err := a.toolset.Invoke(ctx, name, params)
			if err != nil {
				if coded, ok := xerrors.From(err); ok && coded.Details() != nil {
					_ = printJSON(cmd.ErrOrStderr(), coded.Details())
				}
				return err
			}
			return printJSON(out, map[string]any{"tool": name, "result": result})
		},
	}
	remote.bind(cmd)
	cmd.Flags().BoolVar(&queued, "queue", false, "通过守护进程排队执行")
	cmd.Flags().DurationVar(&wait, "wait", 0, "排队执行时等待结果的最长时间")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "调用超时时间")
	return cmd
}
