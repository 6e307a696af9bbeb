package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/farmbridge/core/protocol"
	"github.com/kilianp07/farmbridge/core/transport"
	"github.com/kilianp07/farmbridge/infra/mqtt"
)

var (
	cmdTimeout  time.Duration
	cmdNoWait   bool
	cmdUsername string
	cmdPassword string
)

var commandCmd = &cobra.Command{
	Use:   "command DEVICE NAME [key=value...]",
	Short: "Send a command to a device and wait for its response",
	Example: `  farmbridge command greenhouse-1 set_relay relay_id=pump state=ON duration=30
  farmbridge command greenhouse-1 update_interval interval=10`,
	Args: cobra.MinimumNArgs(2),
	RunE: sendCommand,
}

func init() {
	commandCmd.Flags().DurationVar(&cmdTimeout, "timeout", 10*time.Second, "how long to wait for the response")
	commandCmd.Flags().BoolVar(&cmdNoWait, "no-wait", false, "publish without waiting for a response")
	commandCmd.Flags().StringVar(&cmdUsername, "username", "", "broker username of the operator")
	commandCmd.Flags().StringVar(&cmdPassword, "password", "", "broker password of the operator")
	rootCmd.AddCommand(commandCmd)
}

// parseParams turns key=value pairs into command parameters. Numbers and
// booleans are typed, everything else stays a string.
func parseParams(pairs []string) (protocol.Params, error) {
	p := protocol.Params{}
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("parameter %q is not key=value", kv)
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			p[k] = f
		} else if b, err := strconv.ParseBool(v); err == nil {
			p[k] = b
		} else {
			p[k] = v
		}
	}
	return p, nil
}

func newCommander(cmd *cobra.Command) (*mqtt.Commander, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	creds := transport.Credentials{Username: cmdUsername, Password: cmdPassword}
	c, err := mqtt.NewCommander(cfg.MQTT.Config, creds, cfg.MQTT.QoS.Levels().Command)
	if err != nil {
		return nil, fmt.Errorf("mqtt commander: %w", err)
	}
	return c, nil
}

func sendCommand(cmd *cobra.Command, args []string) error {
	params, err := parseParams(args[2:])
	if err != nil {
		return err
	}
	c, err := newCommander(cmd)
	if err != nil {
		return err
	}
	defer c.Disconnect()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	id, err := c.Send(ctx, args[0], args[1], params)
	if err != nil {
		return err
	}
	if cmdNoWait {
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	}
	res, err := c.Wait(id, cmdTimeout)
	if err != nil {
		return fmt.Errorf("command %s: %w", id, err)
	}
	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	if !res.OK() {
		return fmt.Errorf("device answered: %s", res.Message)
	}
	return nil
}
