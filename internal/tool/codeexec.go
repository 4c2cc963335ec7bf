package tool

import (
	"context"
	"fmt"
	"net/rpc"
	"os/exec"

	"github.com/hashicorp/go-hclog"
	goplugin "github.com/hashicorp/go-plugin"
)

// Code executor runs snippets in a sandboxed out-of-process plugin binary
// (spec §4.7's "Code executor: runs snippets in a sandboxed environment and
// returns stdout+stderr"), grounded on the teacher's plugins/grpc loader
// idiom (spawn-and-dispense via hashicorp/go-plugin) but using go-plugin's
// net/rpc transport instead of the teacher's generated gRPC stubs, since a
// single Execute(snippet) method does not warrant a protobuf service.

var codeExecutorHandshake = goplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "OVERSIGHT_CODE_EXECUTOR",
	MagicCookieValue: "snippet-sandbox",
}

// CodeExecutorIface is the interface the sandboxed plugin binary exposes.
type CodeExecutorIface interface {
	Execute(code string) (stdout string, stderr string, err error)
}

// codeExecutorPlugin adapts CodeExecutorIface to go-plugin's net/rpc Plugin.
type codeExecutorPlugin struct {
	Impl CodeExecutorIface
}

func (p *codeExecutorPlugin) Server(*goplugin.MuxBroker) (interface{}, error) {
	return &codeExecutorRPCServer{impl: p.Impl}, nil
}

func (p *codeExecutorPlugin) Client(b *goplugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &codeExecutorRPCClient{client: c}, nil
}

type codeExecutorRPCServer struct {
	impl CodeExecutorIface
}

type executeArgs struct{ Code string }
type executeReply struct {
	Stdout string
	Stderr string
}

func (s *codeExecutorRPCServer) Execute(args executeArgs, reply *executeReply) error {
	stdout, stderr, err := s.impl.Execute(args.Code)
	reply.Stdout, reply.Stderr = stdout, stderr
	return err
}

type codeExecutorRPCClient struct{ client *rpc.Client }

func (c *codeExecutorRPCClient) Execute(code string) (string, string, error) {
	var reply executeReply
	if err := c.client.Call("Plugin.Execute", executeArgs{Code: code}, &reply); err != nil {
		return "", "", err
	}
	return reply.Stdout, reply.Stderr, nil
}

// CodeExecutorConfig locates the sandboxed executor plugin binary.
type CodeExecutorConfig struct {
	BinaryPath string
	Name       string // tool name exposed to the LLM, default "execute_code"
}

// ConnectCodeExecutor spawns the plugin binary and returns a Tool backed by
// it, plus a shutdown function the caller must defer.
func ConnectCodeExecutor(cfg CodeExecutorConfig) (Tool, func(), error) {
	client := goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig:  codeExecutorHandshake,
		Plugins:          map[string]goplugin.Plugin{"executor": &codeExecutorPlugin{}},
		Cmd:              exec.Command(cfg.BinaryPath),
		Logger:           hclog.New(&hclog.LoggerOptions{Name: "code-executor", Level: hclog.Warn}),
		AllowedProtocols: []goplugin.Protocol{goplugin.ProtocolNetRPC},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, nil, fmt.Errorf("connect code executor plugin: %w", err)
	}
	raw, err := rpcClient.Dispense("executor")
	if err != nil {
		client.Kill()
		return nil, nil, fmt.Errorf("dispense code executor plugin: %w", err)
	}

	impl, ok := raw.(CodeExecutorIface)
	if !ok {
		client.Kill()
		return nil, nil, fmt.Errorf("code executor plugin does not implement CodeExecutorIface")
	}

	name := cfg.Name
	if name == "" {
		name = "execute_code"
	}

	return &codeExecutorTool{name: name, impl: impl}, client.Kill, nil
}

type codeExecutorTool struct {
	name string
	impl CodeExecutorIface
}

func (t *codeExecutorTool) Metadata() Metadata {
	return Metadata{
		Name:        t.name,
		Description: "Runs a code snippet in a sandboxed subprocess and returns its stdout and stderr.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"code": map[string]any{"type": "string"}},
			"required":   []string{"code"},
		},
	}
}

func (t *codeExecutorTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	code, _ := args["code"].(string)
	stdout, stderr, err := t.impl.Execute(code)
	if err != nil {
		return "", err
	}
	if stderr != "" {
		return stdout + "\n--- stderr ---\n" + stderr, nil
	}
	return stdout, nil
}
