package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"AgentWallet-Kit/sdk/go/agentwallet"
)

const tokenEnv = "AGENTWALLET_API_TOKEN"

type remoteOptions struct {
	server string
	token  string
}

func (o *remoteOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.server, "server", "", "守护进程地址，设置后通过 REST API 执行")
	cmd.Flags().StringVar(&o.token, "token", os.Getenv(tokenEnv), "访问令牌，默认读取 "+tokenEnv)
}

func (o *remoteOptions) client() (*agentwallet.Client, error) {
	client, err := agentwallet.NewClient(o.server, nil)
	if err != nil {
		return nil, err
	}
	client.SetToken(o.token)
	return client, nil
}

func newToolsCmd(opts *rootOptions) *cobra.Command {
	var (
		word   string
		remote remoteOptions
	)
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools contributed by compatible plugins",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if remote.server != "" {
				client, err := remote.client()
				if err != nil {
					return err
				}
				list, err := client.ListTools(ctx, word)
				if err != nil {
					return err
				}
				return printJSON(out, list)
			}

			a, err := loadApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if word == "" {
				word = a.cfg.Server.DescriptionWord
			}
			type view struct {
				Name        string          `json:"name"`
				Plugin      string          `json:"plugin"`
				Description string          `json:"description"`
				Parameters  json.RawMessage `json:"parameters"`
			}
			defs := a.toolset.Definitions(word)
			views := make([]view, 0, len(defs))
			for _, def := range defs {
				views = append(views, view{
					Name:        def.Name,
					Plugin:      a.toolset.Owner(def.Name),
					Description: def.Description,
					Parameters:  def.Parameters,
				})
			}
			return printJSON(out, map[string]any{
				"chain":   a.chains.DefaultChain(),
				"plugins": a.manager.Plugins(),
				"tools":   views,
				"skipped": a.toolset.Skipped(),
			})
		},
	}
	cmd.Flags().StringVar(&word, "word", "", "替换描述中 {{tool}} 占位符的词，例如 tool 或 action")
	remote.bind(cmd)
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
